// Package indication decodes RIC Indication messages received from E2 nodes
// and dispatches the resulting reports to downstream consumers.
//
// Decoding happens in two stages. The E2AP envelope is decoded first; any
// failure there (malformed bytes, a top-level alternative other than
// initiatingMessage, a message other than RICindication) drops the whole
// buffer. The KPM header and message IEs are then decoded independently of
// each other, so a corrupted message still yields a report with its header.
package indication

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/e2ap"
	"github.com/free5gc/hwxapp/internal/e2sm/kpm"
	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/per"
)

// ProtocolError reports a well-formed envelope that is not a RIC Indication.
type ProtocolError struct {
	Reason string
	Tag    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (got %q)", e.Reason, e.Tag)
}

// IEError reports a failure confined to one IE of an otherwise valid
// indication.
type IEError struct {
	IE  string
	Err error
}

func (e *IEError) Error() string {
	return fmt.Sprintf("%s: %v", e.IE, e.Err)
}

func (e *IEError) Unwrap() error {
	return e.Err
}

// Report is one decoded RIC Indication.
type Report struct {
	NodeID     string    `json:"nodeId"`
	ReceivedAt time.Time `json:"receivedAt"`

	RequestorID    int64  `json:"ricRequestorId"`
	InstanceID     int64  `json:"ricInstanceId"`
	RANFunctionID  int64  `json:"ranFunctionId"`
	ActionID       int64  `json:"ricActionId"`
	SequenceNumber *int64 `json:"ricIndicationSn,omitempty"`
	IndicationType string `json:"ricIndicationType,omitempty"`

	// Header and Message are the format-1 trees; nil when absent or when the
	// IE failed to decode.
	Header  per.Value `json:"header,omitempty"`
	Message per.Value `json:"message,omitempty"`

	HeaderView  *kpm.HeaderFormat1  `json:"-"`
	MessageView *kpm.MessageFormat1 `json:"-"`

	HeaderErr  error `json:"-"`
	MessageErr error `json:"-"`
}

// Complete reports whether both the header and the message were decoded.
func (report *Report) Complete() bool {
	return report.Header != nil && report.Message != nil
}

// Decoder turns raw E2AP envelopes into reports. It holds no state and is
// safe for concurrent use.
type Decoder struct{}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode processes one envelope received from nodeID. The returned error is
// non-nil only for envelope-level failures (*per.DecodeError or
// *ProtocolError); IE failures are recorded on the report.
func (decoder *Decoder) Decode(raw []byte, nodeID string) (*Report, error) {
	pdu, decodeError := e2ap.Decode(raw)
	if decodeError != nil {
		return nil, errors.Wrap(decodeError, "E2AP envelope")
	}

	if logger.IsDebugEnabled() {
		logger.IndicationLog.Debugf("E2AP Indication PDU from node=%s is %s", nodeID, per.Dump(pdu))
	}

	top, err := per.AsChoice(pdu)
	if err != nil {
		return nil, &ProtocolError{Reason: "envelope is not a CHOICE", Tag: fmt.Sprint(pdu)}
	}
	if top.Tag != e2ap.InitiatingMessage {
		return nil, &ProtocolError{Reason: "expecting PDU " + e2ap.InitiatingMessage, Tag: top.Tag}
	}

	value, err := per.Lookup(top.Value, "value")
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error(), Tag: top.Tag}
	}
	message, err := per.AsChoice(value)
	if err != nil {
		return nil, &ProtocolError{Reason: "message value is not a CHOICE", Tag: top.Tag}
	}
	if message.Tag != e2ap.ValueRICindication {
		return nil, &ProtocolError{Reason: "expecting " + e2ap.ValueRICindication, Tag: message.Tag}
	}

	ies, err := e2ap.ProtocolIEs(message.Value)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error(), Tag: message.Tag}
	}

	report := &Report{NodeID: nodeID, ReceivedAt: time.Now().UTC()}
	for _, ie := range ies {
		name, known := e2ap.IEName(ie.ID)
		if !known || name != ie.Tag {
			reason := fmt.Sprintf("unknown IE id=%d", ie.ID)
			if known {
				reason = fmt.Sprintf("IE id=%d carries %s, expecting %s", ie.ID, ie.Tag, name)
			}
			if ie.Criticality == e2ap.CriticalityReject {
				return nil, &ProtocolError{Reason: "mandatory " + reason, Tag: ie.Tag}
			}
			logger.IndicationLog.Debugf("ignoring %s (%s) from node=%s", reason, ie.Criticality, nodeID)
			continue
		}
		decoder.applyIE(report, ie)
	}
	return report, nil
}

func (decoder *Decoder) applyIE(report *Report, ie e2ap.IE) {
	switch ie.Tag {
	case e2ap.IERICrequestID:
		requestID, _ := per.AsSequence(ie.Value)
		report.RequestorID, _ = per.AsInteger(requestID["ricRequestorID"])
		report.InstanceID, _ = per.AsInteger(requestID["ricInstanceID"])
	case e2ap.IERANfunctionID:
		report.RANFunctionID, _ = per.AsInteger(ie.Value)
	case e2ap.IERICactionID:
		report.ActionID, _ = per.AsInteger(ie.Value)
	case e2ap.IERICindicationSN:
		if number, err := per.AsInteger(ie.Value); err == nil {
			report.SequenceNumber = &number
		}
	case e2ap.IERICindicationType:
		report.IndicationType, _ = per.AsEnum(ie.Value)
	case e2ap.IERICindicationHeader:
		decoder.applyHeader(report, ie.Value)
	case e2ap.IERICindicationMessage:
		decoder.applyMessage(report, ie.Value)
	default:
		logger.IndicationLog.Tracef("ignoring IE %s (id=%d) from node=%s", ie.Tag, ie.ID, report.NodeID)
	}
}

func (decoder *Decoder) applyHeader(report *Report, value per.Value) {
	logger.IndicationLog.Debugf("Processing RIC Indication Header from node=%s", report.NodeID)

	payload, _ := per.AsBytes(value)
	format1, err := kpm.DecodeHeader(payload)
	if err != nil {
		report.HeaderErr = &IEError{IE: e2ap.IERICindicationHeader, Err: err}
		return
	}
	report.Header = format1
	report.HeaderErr = nil

	view, err := kpm.ParseHeaderFormat1(format1)
	if err != nil {
		logger.IndicationLog.Warnf("KPM Indication Header from node=%s has no typed view: %v", report.NodeID, err)
		return
	}
	report.HeaderView = &view
}

func (decoder *Decoder) applyMessage(report *Report, value per.Value) {
	logger.IndicationLog.Debugf("Processing RIC Indication Message from node=%s", report.NodeID)

	payload, _ := per.AsBytes(value)
	format1, err := kpm.DecodeMessage(payload)
	if err != nil {
		report.MessageErr = &IEError{IE: e2ap.IERICindicationMessage, Err: err}
		return
	}
	report.Message = format1
	report.MessageErr = nil

	view, err := kpm.ParseMessageFormat1(format1)
	if err != nil {
		logger.IndicationLog.Warnf("KPM Indication Message from node=%s has no typed view: %v", report.NodeID, err)
		return
	}
	report.MessageView = &view
}
