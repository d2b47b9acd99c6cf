package kpm

import (
	"github.com/free5gc/hwxapp/internal/per"
)

// Subscription defaults.
const (
	DefaultReportingPeriodMs   uint32 = 1000
	DefaultGranularityPeriodMs uint32 = 1000
	DefaultRANStyleType        int64  = 1
)

// defaultMeasurements is the KPI catalogue requested when no names are
// configured. The trailing space on the third entry is part of the name.
var defaultMeasurements = []string{
	"DRB.RlcSduTransmittedVolumeDL-Filter",
	"DRB.RlcSduTransmittedVolumeUL-Filter",
	"DRB.PerDataVolumeDLDist.Bin ",
	"DRB.PerDataVolumeULDist.Bin",
	"DRB.RlcPacketDropRateDLDist",
	"DRB.PacketLossRateULDist",
	"L1M.DL-SS-RSRP.SSB",
	"L1M.DL-SS-SINR.SSB",
	"L1M.UL-SRS-RSRP",
}

// DefaultMeasurements returns a copy of the default KPI catalogue.
func DefaultMeasurements() []string {
	names := make([]string, len(defaultMeasurements))
	copy(names, defaultMeasurements)
	return names
}

// BuildEventTrigger wraps the reporting period into eventDefinition-Format1.
func BuildEventTrigger(reportingPeriodMs uint32) per.Value {
	return EventTriggerDefinition{ReportingPeriodMs: reportingPeriodMs}.Value()
}

// BuildActionDefinition builds actionDefinition-Format1 with one measurement
// item per name, each carrying the "no label" sentinel. An empty name list
// selects the default catalogue.
func BuildActionDefinition(ranStyleType int64, granularityPeriodMs uint32, measurementNames []string) per.Value {
	if len(measurementNames) == 0 {
		measurementNames = DefaultMeasurements()
	}

	measurements := make([]MeasurementItem, 0, len(measurementNames))
	for _, name := range measurementNames {
		measurements = append(measurements, MeasurementItem{Name: name})
	}

	return ActionDefinition{
		RANStyleType:        ranStyleType,
		GranularityPeriodMs: granularityPeriodMs,
		Measurements:        measurements,
	}.Value()
}

// EncodeEventTrigger builds and encodes the event trigger definition.
func EncodeEventTrigger(reportingPeriodMs uint32) ([]byte, error) {
	return Codec.Encode(SchemaEventTrigger, BuildEventTrigger(reportingPeriodMs))
}

// EncodeActionDefinition builds and encodes the action definition.
func EncodeActionDefinition(ranStyleType int64, granularityPeriodMs uint32, measurementNames []string) ([]byte, error) {
	return Codec.Encode(SchemaActionDefinition,
		BuildActionDefinition(ranStyleType, granularityPeriodMs, measurementNames))
}

// Value renders the trigger as an E2SM-KPM-EventTriggerDefinition.
func (e EventTriggerDefinition) Value() per.Value {
	return per.Sequence{
		EventDefinitionFormats: per.Choice{
			Tag: EventDefinitionFormat1,
			Value: per.Sequence{
				"reportingPeriod": per.Integer(e.ReportingPeriodMs),
			},
		},
	}
}

// Value renders the action definition as an E2SM-KPM-ActionDefinition.
func (a ActionDefinition) Value() per.Value {
	format1 := per.Sequence{
		"measInfoList": measurementInfoList(a.Measurements),
		"granulPeriod": per.Integer(a.GranularityPeriodMs),
	}
	if a.CellGlobalID != nil {
		format1["cellGlobalID"] = per.Bytes(a.CellGlobalID)
	}

	return per.Sequence{
		"ric-Style-Type": per.Integer(a.RANStyleType),
		ActionDefinitionFormats: per.Choice{
			Tag:   ActionDefinitionFormat1,
			Value: format1,
		},
	}
}

func measurementInfoList(measurements []MeasurementItem) per.List {
	list := make(per.List, 0, len(measurements))
	for _, measurement := range measurements {
		list = append(list, measurement.value())
	}
	return list
}

func (m MeasurementItem) value() per.Value {
	measType := per.Choice{Tag: "measName", Value: per.String(m.Name)}
	if m.Name == "" && m.ID > 0 {
		measType = per.Choice{Tag: "measID", Value: per.Integer(m.ID)}
	}

	labels := m.Labels
	if len(labels) == 0 {
		labels = []LabelSpec{{}}
	}
	labelInfoList := make(per.List, 0, len(labels))
	for _, label := range labels {
		labelInfoList = append(labelInfoList, per.Sequence{"measLabel": label.value()})
	}

	return per.Sequence{
		"measType":      measType,
		"labelInfoList": labelInfoList,
	}
}

func (l LabelSpec) value() per.Value {
	if l.IsEmpty() {
		return per.Sequence{"noLabel": per.Enum("true")}
	}

	label := per.Sequence{}
	if l.PLMNID != nil {
		label["plmnID"] = per.Bytes(l.PLMNID)
	}
	if l.Slice != nil {
		slice := per.Sequence{"sST": per.Bytes{l.Slice.SST}}
		if l.Slice.SD != nil {
			slice["sD"] = per.Bytes(l.Slice.SD)
		}
		label["sliceID"] = slice
	}
	if l.FiveQI != nil {
		label["fiveQI"] = per.Integer(*l.FiveQI)
	}
	if l.QCI != nil {
		label["qCI"] = per.Integer(*l.QCI)
	}
	return label
}
