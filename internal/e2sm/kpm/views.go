package kpm

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/per"
)

// Measurement record alternatives.
const (
	RecordInteger = "integer"
	RecordReal    = "real"
	RecordNoValue = "noValue"
)

// seconds between the NTP epoch (1900) and the Unix epoch (1970)
const ntpEpochOffset = 2208988800

// EventTriggerDefinition is eventDefinition-Format1.
type EventTriggerDefinition struct {
	ReportingPeriodMs uint32
}

// ActionDefinition is actionDefinition-Format1 with its RIC style.
type ActionDefinition struct {
	RANStyleType        int64
	GranularityPeriodMs uint32
	Measurements        []MeasurementItem
	CellGlobalID        []byte
}

// MeasurementItem names one measurement either by Name or, when Name is
// empty, by ID.
type MeasurementItem struct {
	Name   string
	ID     int64
	Labels []LabelSpec
}

// LabelSpec narrows a measurement. The zero LabelSpec is the "no label"
// sentinel.
type LabelSpec struct {
	PLMNID []byte
	Slice  *SliceID
	FiveQI *int64
	QCI    *int64
}

// SliceID is an S-NSSAI.
type SliceID struct {
	SST byte
	SD  []byte
}

// IsEmpty reports whether the label is the "no label" sentinel.
func (l LabelSpec) IsEmpty() bool {
	return l.PLMNID == nil && l.Slice == nil && l.FiveQI == nil && l.QCI == nil
}

// HeaderFormat1 is indicationHeader-Format1.
type HeaderFormat1 struct {
	CollectStartTime  time.Time
	FileFormatVersion string
	SenderName        string
	SenderType        string
	VendorName        string
}

// MessageFormat1 is indicationMessage-Format1.
type MessageFormat1 struct {
	MeasData            []MeasurementData
	MeasInfo            []MeasurementItem
	GranularityPeriodMs uint32
}

// MeasurementData is one measData entry; records line up with MeasInfo.
type MeasurementData struct {
	Records    []MeasurementRecord
	Incomplete bool
}

// MeasurementRecord is one value of a measurement record.
type MeasurementRecord struct {
	Kind    string
	Integer uint32
	Real    float64
}

// ParseEventTrigger extracts eventDefinition-Format1.
func ParseEventTrigger(value per.Value) (EventTriggerDefinition, error) {
	period, err := lookupInteger(value, EventDefinitionFormats, EventDefinitionFormat1, "reportingPeriod")
	if err != nil {
		return EventTriggerDefinition{}, err
	}
	return EventTriggerDefinition{ReportingPeriodMs: uint32(period)}, nil
}

// ParseActionDefinition extracts actionDefinition-Format1.
func ParseActionDefinition(value per.Value) (ActionDefinition, error) {
	style, err := lookupInteger(value, "ric-Style-Type")
	if err != nil {
		return ActionDefinition{}, err
	}
	format1, err := lookupSequence(value, ActionDefinitionFormats, ActionDefinitionFormat1)
	if err != nil {
		return ActionDefinition{}, err
	}
	granularity, err := per.AsInteger(format1["granulPeriod"])
	if err != nil {
		return ActionDefinition{}, errors.Wrap(err, "granulPeriod")
	}
	measurements, err := parseMeasurementInfoList(format1["measInfoList"])
	if err != nil {
		return ActionDefinition{}, err
	}

	action := ActionDefinition{
		RANStyleType:        style,
		GranularityPeriodMs: uint32(granularity),
		Measurements:        measurements,
	}
	if cgi, present := format1["cellGlobalID"]; present {
		if action.CellGlobalID, err = per.AsBytes(cgi); err != nil {
			return ActionDefinition{}, errors.Wrap(err, "cellGlobalID")
		}
	}
	return action, nil
}

// DecodeHeader decodes an E2SM-KPM-IndicationHeader and returns the
// indicationHeader-Format1 tree.
func DecodeHeader(data []byte) (per.Value, error) {
	return decodeFormat(SchemaIndicationHeader, data, IndicationHeaderFormats, IndicationHeaderFormat1)
}

// DecodeMessage decodes an E2SM-KPM-IndicationMessage and returns the
// indicationMessage-Format1 tree.
func DecodeMessage(data []byte) (per.Value, error) {
	return decodeFormat(SchemaIndicationMessage, data, IndicationMessageFormats, IndicationMessageFormat1)
}

func decodeFormat(schemaID string, data []byte, path ...string) (per.Value, error) {
	decoded, err := Codec.Decode(schemaID, data)
	if err != nil {
		return nil, err
	}
	return per.Lookup(decoded, path...)
}

// ParseHeaderFormat1 converts an indicationHeader-Format1 tree.
func ParseHeaderFormat1(format1 per.Value) (HeaderFormat1, error) {
	fields, err := per.AsSequence(format1)
	if err != nil {
		return HeaderFormat1{}, err
	}
	raw, err := per.AsBytes(fields["colletStartTime"])
	if err != nil {
		return HeaderFormat1{}, errors.Wrap(err, "colletStartTime")
	}
	start, err := DecodeTimestamp(raw)
	if err != nil {
		return HeaderFormat1{}, err
	}

	header := HeaderFormat1{CollectStartTime: start}
	optional := map[string]*string{
		"fileFormatversion": &header.FileFormatVersion,
		"senderName":        &header.SenderName,
		"senderType":        &header.SenderType,
		"vendorName":        &header.VendorName,
	}
	for name, target := range optional {
		value, present := fields[name]
		if !present {
			continue
		}
		if *target, err = per.AsString(value); err != nil {
			return HeaderFormat1{}, errors.Wrap(err, name)
		}
	}
	return header, nil
}

// ParseMessageFormat1 converts an indicationMessage-Format1 tree.
func ParseMessageFormat1(format1 per.Value) (MessageFormat1, error) {
	fields, err := per.AsSequence(format1)
	if err != nil {
		return MessageFormat1{}, err
	}
	dataList, err := per.AsList(fields["measData"])
	if err != nil {
		return MessageFormat1{}, errors.Wrap(err, "measData")
	}

	message := MessageFormat1{MeasData: make([]MeasurementData, 0, len(dataList))}
	for index, item := range dataList {
		data, err := parseMeasurementData(item)
		if err != nil {
			return MessageFormat1{}, errors.Wrapf(err, "measData[%d]", index)
		}
		message.MeasData = append(message.MeasData, data)
	}

	if infoList, present := fields["measInfoList"]; present {
		if message.MeasInfo, err = parseMeasurementInfoList(infoList); err != nil {
			return MessageFormat1{}, err
		}
	}
	if granularity, present := fields["granulPeriod"]; present {
		period, err := per.AsInteger(granularity)
		if err != nil {
			return MessageFormat1{}, errors.Wrap(err, "granulPeriod")
		}
		message.GranularityPeriodMs = uint32(period)
	}
	return message, nil
}

// Value renders the header as an E2SM-KPM-IndicationHeader.
func (h HeaderFormat1) Value() per.Value {
	format1 := per.Sequence{"colletStartTime": per.Bytes(EncodeTimestamp(h.CollectStartTime))}
	optional := map[string]string{
		"fileFormatversion": h.FileFormatVersion,
		"senderName":        h.SenderName,
		"senderType":        h.SenderType,
		"vendorName":        h.VendorName,
	}
	for name, text := range optional {
		if text != "" {
			format1[name] = per.String(text)
		}
	}
	return per.Sequence{
		IndicationHeaderFormats: per.Choice{Tag: IndicationHeaderFormat1, Value: format1},
	}
}

// Value renders the message as an E2SM-KPM-IndicationMessage.
func (m MessageFormat1) Value() per.Value {
	dataList := make(per.List, 0, len(m.MeasData))
	for _, data := range m.MeasData {
		records := make(per.List, 0, len(data.Records))
		for _, record := range data.Records {
			records = append(records, record.value())
		}
		item := per.Sequence{"measRecord": records}
		if data.Incomplete {
			item["incompleteFlag"] = per.Enum("true")
		}
		dataList = append(dataList, item)
	}

	format1 := per.Sequence{"measData": dataList}
	if len(m.MeasInfo) > 0 {
		format1["measInfoList"] = measurementInfoList(m.MeasInfo)
	}
	if m.GranularityPeriodMs > 0 {
		format1["granulPeriod"] = per.Integer(m.GranularityPeriodMs)
	}
	return per.Sequence{
		IndicationMessageFormats: per.Choice{Tag: IndicationMessageFormat1, Value: format1},
	}
}

func (r MeasurementRecord) value() per.Value {
	switch r.Kind {
	case RecordReal:
		octets := make([]byte, 8)
		binary.BigEndian.PutUint64(octets, math.Float64bits(r.Real))
		return per.Choice{Tag: RecordReal, Value: per.Bytes(octets)}
	case RecordNoValue:
		return per.Choice{Tag: RecordNoValue, Value: per.Enum("true")}
	default:
		return per.Choice{Tag: RecordInteger, Value: per.Integer(r.Integer)}
	}
}

// EncodeTimestamp renders t as a 64-bit NTP timestamp.
func EncodeTimestamp(t time.Time) []byte {
	seconds := uint64(t.Unix() + ntpEpochOffset)
	fraction := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	octets := make([]byte, timestampOctets)
	binary.BigEndian.PutUint32(octets[:4], uint32(seconds))
	binary.BigEndian.PutUint32(octets[4:], uint32(fraction))
	return octets
}

// DecodeTimestamp parses a 64-bit NTP timestamp.
func DecodeTimestamp(octets []byte) (time.Time, error) {
	if len(octets) != timestampOctets {
		return time.Time{}, errors.Errorf("timestamp has %d octets, want %d", len(octets), timestampOctets)
	}
	seconds := int64(binary.BigEndian.Uint32(octets[:4])) - ntpEpochOffset
	fraction := uint64(binary.BigEndian.Uint32(octets[4:]))
	nanoseconds := int64((fraction * uint64(time.Second)) >> 32)
	return time.Unix(seconds, nanoseconds).UTC(), nil
}

func parseMeasurementInfoList(value per.Value) ([]MeasurementItem, error) {
	list, err := per.AsList(value)
	if err != nil {
		return nil, errors.Wrap(err, "measInfoList")
	}

	items := make([]MeasurementItem, 0, len(list))
	for index, entry := range list {
		item, err := parseMeasurementItem(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "measInfoList[%d]", index)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseMeasurementItem(value per.Value) (MeasurementItem, error) {
	fields, err := per.AsSequence(value)
	if err != nil {
		return MeasurementItem{}, err
	}
	measType, err := per.AsChoice(fields["measType"])
	if err != nil {
		return MeasurementItem{}, errors.Wrap(err, "measType")
	}

	var item MeasurementItem
	switch measType.Tag {
	case "measName":
		item.Name, err = per.AsString(measType.Value)
	case "measID":
		item.ID, err = per.AsInteger(measType.Value)
	default:
		err = errors.Errorf("unexpected measType %q", measType.Tag)
	}
	if err != nil {
		return MeasurementItem{}, errors.Wrap(err, "measType")
	}

	labels, err := per.AsList(fields["labelInfoList"])
	if err != nil {
		return MeasurementItem{}, errors.Wrap(err, "labelInfoList")
	}
	for index, entry := range labels {
		label, err := parseLabel(entry)
		if err != nil {
			return MeasurementItem{}, errors.Wrapf(err, "labelInfoList[%d]", index)
		}
		item.Labels = append(item.Labels, label)
	}
	return item, nil
}

func parseLabel(value per.Value) (LabelSpec, error) {
	measLabel, err := per.Lookup(value, "measLabel")
	if err != nil {
		return LabelSpec{}, err
	}
	fields, err := per.AsSequence(measLabel)
	if err != nil {
		return LabelSpec{}, err
	}

	var label LabelSpec
	if plmn, present := fields["plmnID"]; present {
		if label.PLMNID, err = per.AsBytes(plmn); err != nil {
			return LabelSpec{}, errors.Wrap(err, "plmnID")
		}
	}
	if slice, present := fields["sliceID"]; present {
		sliceFields, err := per.AsSequence(slice)
		if err != nil {
			return LabelSpec{}, errors.Wrap(err, "sliceID")
		}
		sst, err := per.AsBytes(sliceFields["sST"])
		if err != nil || len(sst) != 1 {
			return LabelSpec{}, errors.Errorf("sliceID.sST malformed")
		}
		label.Slice = &SliceID{SST: sst[0]}
		if sd, present := sliceFields["sD"]; present {
			if label.Slice.SD, err = per.AsBytes(sd); err != nil {
				return LabelSpec{}, errors.Wrap(err, "sliceID.sD")
			}
		}
	}
	if fiveQI, present := fields["fiveQI"]; present {
		number, err := per.AsInteger(fiveQI)
		if err != nil {
			return LabelSpec{}, errors.Wrap(err, "fiveQI")
		}
		label.FiveQI = &number
	}
	if qci, present := fields["qCI"]; present {
		number, err := per.AsInteger(qci)
		if err != nil {
			return LabelSpec{}, errors.Wrap(err, "qCI")
		}
		label.QCI = &number
	}
	return label, nil
}

func parseMeasurementData(value per.Value) (MeasurementData, error) {
	fields, err := per.AsSequence(value)
	if err != nil {
		return MeasurementData{}, err
	}
	records, err := per.AsList(fields["measRecord"])
	if err != nil {
		return MeasurementData{}, errors.Wrap(err, "measRecord")
	}

	data := MeasurementData{Records: make([]MeasurementRecord, 0, len(records))}
	for index, entry := range records {
		choice, err := per.AsChoice(entry)
		if err != nil {
			return MeasurementData{}, errors.Wrapf(err, "measRecord[%d]", index)
		}
		record := MeasurementRecord{Kind: choice.Tag}
		switch choice.Tag {
		case RecordInteger:
			number, err := per.AsInteger(choice.Value)
			if err != nil {
				return MeasurementData{}, errors.Wrapf(err, "measRecord[%d]", index)
			}
			record.Integer = uint32(number)
		case RecordReal:
			octets, err := per.AsBytes(choice.Value)
			if err != nil || len(octets) != 8 {
				return MeasurementData{}, errors.Errorf("measRecord[%d]: malformed real", index)
			}
			record.Real = math.Float64frombits(binary.BigEndian.Uint64(octets))
		case RecordNoValue:
		default:
			return MeasurementData{}, errors.Errorf("measRecord[%d]: unexpected record %q", index, choice.Tag)
		}
		data.Records = append(data.Records, record)
	}

	_, data.Incomplete = fields["incompleteFlag"]
	return data, nil
}

func lookupInteger(value per.Value, path ...string) (int64, error) {
	found, err := per.Lookup(value, path...)
	if err != nil {
		return 0, err
	}
	return per.AsInteger(found)
}

func lookupSequence(value per.Value, path ...string) (per.Sequence, error) {
	found, err := per.Lookup(value, path...)
	if err != nil {
		return nil, err
	}
	return per.AsSequence(found)
}
