// Package kpm declares the E2SM-KPM service model schemas used by the xApp
// (event trigger format 1, action definition format 1, indication header
// format 1 and indication message format 1) together with builders for the
// subscription payloads and typed views over decoded indications.
package kpm

import (
	"github.com/free5gc/hwxapp/internal/per"
)

// Codec schema IDs.
const (
	SchemaEventTrigger      = "E2SM-KPM-EventTriggerDefinition"
	SchemaActionDefinition  = "E2SM-KPM-ActionDefinition"
	SchemaIndicationHeader  = "E2SM-KPM-IndicationHeader"
	SchemaIndicationMessage = "E2SM-KPM-IndicationMessage"
)

// Choice tags of the format wrappers.
const (
	EventDefinitionFormats   = "eventDefinition-formats"
	EventDefinitionFormat1   = "eventDefinition-Format1"
	ActionDefinitionFormats  = "actionDefinition-formats"
	ActionDefinitionFormat1  = "actionDefinition-Format1"
	IndicationHeaderFormats  = "indicationHeader-formats"
	IndicationHeaderFormat1  = "indicationHeader-Format1"
	IndicationMessageFormats = "indicationMessage-formats"
	IndicationMessageFormat1 = "indicationMessage-Format1"
)

const (
	maxPeriod       = 4294967295
	maxMeasurements = 65535
	timestampOctets = 8
)

var (
	granularityPeriodType = per.NewInteger("GranularityPeriod", 1, maxPeriod)

	sliceIDType = per.NewSequence("S-NSSAI",
		per.Mandatory("sST", per.NewBytes("SST", per.Fixed(1))),
		per.Optional("sD", per.NewBytes("SD", per.Fixed(3))),
	)

	measurementLabelType = per.NewSequence("MeasurementLabel",
		per.Optional("noLabel", per.NewEnum("noLabel", "true")),
		per.Optional("plmnID", per.NewBytes("PLMNIdentity", per.Fixed(3))),
		per.Optional("sliceID", sliceIDType),
		per.Optional("fiveQI", per.NewInteger("FiveQI", 0, 255)),
		per.Optional("qCI", per.NewInteger("QCI", 0, 255)),
	)

	labelInfoItemType = per.NewSequence("LabelInfoItem",
		per.Mandatory("measLabel", measurementLabelType),
	)

	measurementTypeType = per.NewChoice("MeasurementType",
		per.Alt("measName", per.NewString("MeasurementTypeName", per.Size(1, 150))),
		per.Alt("measID", per.NewInteger("MeasurementTypeID", 1, 65536)),
	)

	measurementInfoItemType = per.NewSequence("MeasurementInfoItem",
		per.Mandatory("measType", measurementTypeType),
		per.Mandatory("labelInfoList", per.NewList("LabelInfoList", labelInfoItemType, per.AtLeast(1))),
	)

	measurementInfoListType = per.NewList("MeasurementInfoList", measurementInfoItemType, per.Size(1, maxMeasurements))

	eventTriggerType = per.NewSequence(SchemaEventTrigger,
		per.Mandatory(EventDefinitionFormats, per.NewChoice(EventDefinitionFormats,
			per.Alt(EventDefinitionFormat1, per.NewSequence(EventDefinitionFormat1,
				per.Mandatory("reportingPeriod", per.NewInteger("reportingPeriod", 1, maxPeriod)),
			)),
		)),
	)

	actionDefinitionType = per.NewSequence(SchemaActionDefinition,
		per.Mandatory("ric-Style-Type", per.NewUnconstrainedInteger("RIC-Style-Type")),
		per.Mandatory(ActionDefinitionFormats, per.NewChoice(ActionDefinitionFormats,
			per.Alt(ActionDefinitionFormat1, per.NewSequence(ActionDefinitionFormat1,
				per.Mandatory("measInfoList", measurementInfoListType),
				per.Mandatory("granulPeriod", granularityPeriodType),
				per.Optional("cellGlobalID", per.NewBytes("CGI", per.AtLeast(0))),
			)),
		)),
	)

	indicationHeaderType = per.NewSequence(SchemaIndicationHeader,
		per.Mandatory(IndicationHeaderFormats, per.NewChoice(IndicationHeaderFormats,
			per.Alt(IndicationHeaderFormat1, per.NewSequence(IndicationHeaderFormat1,
				per.Mandatory("colletStartTime", per.NewBytes("TimeStamp", per.Fixed(timestampOctets))),
				per.Optional("fileFormatversion", per.NewString("fileFormatversion", per.Size(0, 15))),
				per.Optional("senderName", per.NewString("senderName", per.Size(0, 400))),
				per.Optional("senderType", per.NewString("senderType", per.Size(0, 8))),
				per.Optional("vendorName", per.NewString("vendorName", per.Size(0, 32))),
			)),
		)),
	)

	measurementRecordItemType = per.NewChoice("MeasurementRecordItem",
		per.Alt(RecordInteger, per.NewInteger("integer", 0, maxPeriod)),
		per.Alt(RecordReal, per.NewBytes("real", per.Fixed(8))),
		per.Alt(RecordNoValue, per.NewEnum("noValue", "true")),
	)

	measurementDataItemType = per.NewSequence("MeasurementDataItem",
		per.Mandatory("measRecord", per.NewList("MeasurementRecord", measurementRecordItemType, per.Size(1, maxMeasurements))),
		per.Optional("incompleteFlag", per.NewEnum("incompleteFlag", "true")),
	)

	indicationMessageType = per.NewSequence(SchemaIndicationMessage,
		per.Mandatory(IndicationMessageFormats, per.NewChoice(IndicationMessageFormats,
			per.Alt(IndicationMessageFormat1, per.NewSequence(IndicationMessageFormat1,
				per.Mandatory("measData", per.NewList("MeasurementData", measurementDataItemType, per.Size(1, maxMeasurements))),
				per.Optional("measInfoList", measurementInfoListType),
				per.Optional("granulPeriod", granularityPeriodType),
			)),
		)),
	)

	// Codec holds the four KPM schemas.
	Codec = per.MustNewCodec(
		per.Schema{ID: SchemaEventTrigger, Root: eventTriggerType},
		per.Schema{ID: SchemaActionDefinition, Root: actionDefinitionType},
		per.Schema{ID: SchemaIndicationHeader, Root: indicationHeaderType},
		per.Schema{ID: SchemaIndicationMessage, Root: indicationMessageType},
	)
)
