// Package e2ap declares the E2AP-PDU envelope schema and helpers to build and
// inspect RIC Indication messages.
//
// Only the procedures this xApp exchanges with E2 nodes are declared. The
// protocol IE container is shared across procedures; each IE value is a
// CHOICE keyed by the IE name, mirroring how the IE id selects the open type.
package e2ap

import (
	"github.com/free5gc/hwxapp/internal/per"
)

// SchemaPDU is the codec schema ID of the outer envelope.
const SchemaPDU = "E2AP-PDU"

// Top-level PDU alternatives.
const (
	InitiatingMessage   = "initiatingMessage"
	SuccessfulOutcome   = "successfulOutcome"
	UnsuccessfulOutcome = "unsuccessfulOutcome"
)

// Message value alternatives.
const (
	ValueRICindication                 = "RICindication"
	ValueRICsubscriptionDeleteRequired = "RICsubscriptionDeleteRequired"
	ValueRICsubscriptionResponse       = "RICsubscriptionResponse"
	ValueRICsubscriptionDeleteResponse = "RICsubscriptionDeleteResponse"
	ValueRICsubscriptionFailure        = "RICsubscriptionFailure"
	ValueRICsubscriptionDeleteFailure  = "RICsubscriptionDeleteFailure"
)

// IE value alternatives.
const (
	IERICrequestID         = "RICrequestID"
	IERANfunctionID        = "RANfunctionID"
	IERICactionID          = "RICactionID"
	IERICindicationSN      = "RICindicationSN"
	IERICindicationType    = "RICindicationType"
	IERICindicationHeader  = "RICindicationHeader"
	IERICindicationMessage = "RICindicationMessage"
	IERICcallProcessID     = "RICcallProcessID"
)

// Protocol IE ids.
const (
	IDRANfunctionID        int64 = 5
	IDRICactionID          int64 = 15
	IDRICcallProcessID     int64 = 20
	IDRICindicationHeader  int64 = 25
	IDRICindicationMessage int64 = 26
	IDRICindicationSN      int64 = 27
	IDRICindicationType    int64 = 28
	IDRICrequestID         int64 = 29
)

var ieNamesByID = map[int64]string{
	IDRANfunctionID:        IERANfunctionID,
	IDRICactionID:          IERICactionID,
	IDRICcallProcessID:     IERICcallProcessID,
	IDRICindicationHeader:  IERICindicationHeader,
	IDRICindicationMessage: IERICindicationMessage,
	IDRICindicationSN:      IERICindicationSN,
	IDRICindicationType:    IERICindicationType,
	IDRICrequestID:         IERICrequestID,
}

// IEName returns the value alternative registered for a protocol IE id.
func IEName(id int64) (string, bool) {
	name, found := ieNamesByID[id]
	return name, found
}

// Procedure codes.
const (
	ProcedureRICsubscription               int64 = 8
	ProcedureRICindication                 int64 = 5
	ProcedureRICsubscriptionDelete         int64 = 9
	ProcedureRICsubscriptionDeleteRequired int64 = 12
)

// Criticality items.
const (
	CriticalityReject = "reject"
	CriticalityIgnore = "ignore"
	CriticalityNotify = "notify"
)

var (
	criticalityType = per.NewEnum("Criticality", CriticalityReject, CriticalityIgnore, CriticalityNotify)

	ricRequestIDType = per.NewSequence("RICrequestID",
		per.Mandatory("ricRequestorID", per.NewInteger("ricRequestorID", 0, 65535)),
		per.Mandatory("ricInstanceID", per.NewInteger("ricInstanceID", 0, 65535)),
	)

	ieValueType = per.NewChoice("ProtocolIE-Value",
		per.Alt(IERICrequestID, ricRequestIDType),
		per.Alt(IERANfunctionID, per.NewInteger("RANfunctionID", 0, 4095)),
		per.Alt(IERICactionID, per.NewInteger("RICactionID", 0, 255)),
		per.Alt(IERICindicationSN, per.NewInteger("RICindicationSN", 0, 65535)),
		per.Alt(IERICindicationType, per.NewEnum("RICindicationType", "report", "insert")),
		per.Alt(IERICindicationHeader, per.NewBytes("RICindicationHeader", per.AtLeast(0))),
		per.Alt(IERICindicationMessage, per.NewBytes("RICindicationMessage", per.AtLeast(0))),
		per.Alt(IERICcallProcessID, per.NewBytes("RICcallProcessID", per.AtLeast(0))),
	)

	ieFieldType = per.NewSequence("ProtocolIE-Field",
		per.Mandatory("id", per.NewInteger("ProtocolIE-ID", 0, 65535)),
		per.Mandatory("criticality", criticalityType),
		per.Mandatory("value", ieValueType),
	)

	ieContainerType = per.NewList("ProtocolIE-Container", ieFieldType, per.Size(0, 65535))

	initiatingValueType = per.NewChoice("InitiatingMessage-Value",
		per.Alt(ValueRICindication, ieMessage(ValueRICindication)),
		per.Alt(ValueRICsubscriptionDeleteRequired, ieMessage(ValueRICsubscriptionDeleteRequired)),
	)

	successfulValueType = per.NewChoice("SuccessfulOutcome-Value",
		per.Alt(ValueRICsubscriptionResponse, ieMessage(ValueRICsubscriptionResponse)),
		per.Alt(ValueRICsubscriptionDeleteResponse, ieMessage(ValueRICsubscriptionDeleteResponse)),
	)

	unsuccessfulValueType = per.NewChoice("UnsuccessfulOutcome-Value",
		per.Alt(ValueRICsubscriptionFailure, ieMessage(ValueRICsubscriptionFailure)),
		per.Alt(ValueRICsubscriptionDeleteFailure, ieMessage(ValueRICsubscriptionDeleteFailure)),
	)

	pduType = per.NewChoice(SchemaPDU,
		per.Alt(InitiatingMessage, elementaryProcedure(InitiatingMessage, initiatingValueType)),
		per.Alt(SuccessfulOutcome, elementaryProcedure(SuccessfulOutcome, successfulValueType)),
		per.Alt(UnsuccessfulOutcome, elementaryProcedure(UnsuccessfulOutcome, unsuccessfulValueType)),
	)

	// Codec holds the envelope schema.
	Codec = per.MustNewCodec(per.Schema{ID: SchemaPDU, Root: pduType})
)

func ieMessage(name string) *per.Type {
	return per.NewSequence(name, per.Mandatory("protocolIEs", ieContainerType))
}

func elementaryProcedure(name string, value *per.Type) *per.Type {
	return per.NewSequence(name,
		per.Mandatory("procedureCode", per.NewInteger("ProcedureCode", 0, 255)),
		per.Mandatory("criticality", criticalityType),
		per.Mandatory("value", value),
	)
}
