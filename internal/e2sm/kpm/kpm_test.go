package kpm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/hwxapp/internal/per"
)

func TestActionDefinitionScenario(t *testing.T) {
	encoded, err := EncodeActionDefinition(1, 1000, []string{"DRB.RlcSduTransmittedVolumeDL-Filter"})
	require.NoError(t, err)

	decoded, err := Codec.Decode(SchemaActionDefinition, encoded)
	require.NoError(t, err)

	action, err := ParseActionDefinition(decoded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), action.RANStyleType)
	assert.Equal(t, uint32(1000), action.GranularityPeriodMs)
	require.Len(t, action.Measurements, 1)
	assert.Equal(t, "DRB.RlcSduTransmittedVolumeDL-Filter", action.Measurements[0].Name)
	require.Len(t, action.Measurements[0].Labels, 1)
	assert.True(t, action.Measurements[0].Labels[0].IsEmpty())

	measInfoList, err := per.Lookup(decoded, ActionDefinitionFormats, ActionDefinitionFormat1, "measInfoList")
	require.NoError(t, err)
	items := measInfoList.(per.List)
	label, err := per.Lookup(items[0], "labelInfoList")
	require.NoError(t, err)
	assert.Equal(t, per.List{per.Sequence{"measLabel": per.Sequence{"noLabel": per.Enum("true")}}}, label)
}

func TestActionDefinitionDefaultsToCatalogue(t *testing.T) {
	value := BuildActionDefinition(DefaultRANStyleType, DefaultGranularityPeriodMs, nil)
	encoded, err := Codec.Encode(SchemaActionDefinition, value)
	require.NoError(t, err)

	decoded, err := Codec.Decode(SchemaActionDefinition, encoded)
	require.NoError(t, err)
	assert.Equal(t, value, decoded)

	action, err := ParseActionDefinition(decoded)
	require.NoError(t, err)
	require.Len(t, action.Measurements, 9)
	assert.Equal(t, "DRB.PerDataVolumeDLDist.Bin ", action.Measurements[2].Name)
	assert.Equal(t, "L1M.UL-SRS-RSRP", action.Measurements[8].Name)
}

func TestDefaultMeasurementsReturnsCopy(t *testing.T) {
	names := DefaultMeasurements()
	names[0] = "changed"
	assert.Equal(t, "DRB.RlcSduTransmittedVolumeDL-Filter", DefaultMeasurements()[0])
}

func TestEventTriggerRoundTrip(t *testing.T) {
	encoded, err := EncodeEventTrigger(DefaultReportingPeriodMs)
	require.NoError(t, err)

	decoded, err := Codec.Decode(SchemaEventTrigger, encoded)
	require.NoError(t, err)

	trigger, err := ParseEventTrigger(decoded)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), trigger.ReportingPeriodMs)
}

func TestEventTriggerRejectsZeroPeriod(t *testing.T) {
	_, err := EncodeEventTrigger(0)
	var encodeErr *per.EncodeError
	require.ErrorAs(t, err, &encodeErr)
	assert.Contains(t, encodeErr.Field, "reportingPeriod")
}

func TestLabelledMeasurementRoundTrip(t *testing.T) {
	fiveQI := int64(9)
	action := ActionDefinition{
		RANStyleType:        2,
		GranularityPeriodMs: 500,
		CellGlobalID:        []byte{0x00, 0xf1, 0x10},
		Measurements: []MeasurementItem{
			{ID: 42},
			{
				Name: "DRB.UEThpDl",
				Labels: []LabelSpec{{
					PLMNID: []byte{0x00, 0xf1, 0x10},
					Slice:  &SliceID{SST: 1, SD: []byte{0x01, 0x02, 0x03}},
					FiveQI: &fiveQI,
				}},
			},
		},
	}

	encoded, err := Codec.Encode(SchemaActionDefinition, action.Value())
	require.NoError(t, err)
	decoded, err := Codec.Decode(SchemaActionDefinition, encoded)
	require.NoError(t, err)

	parsed, err := ParseActionDefinition(decoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xf1, 0x10}, parsed.CellGlobalID)
	assert.Equal(t, int64(42), parsed.Measurements[0].ID)
	assert.Equal(t, action.Measurements[1].Labels, parsed.Measurements[1].Labels)
}

func TestIndicationHeaderRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 500000000, time.UTC)
	header := HeaderFormat1{
		CollectStartTime: start,
		SenderName:       "gnb-du-1",
		VendorName:       "acme",
	}

	encoded, err := Codec.Encode(SchemaIndicationHeader, header.Value())
	require.NoError(t, err)

	format1, err := DecodeHeader(encoded)
	require.NoError(t, err)

	parsed, err := ParseHeaderFormat1(format1)
	require.NoError(t, err)
	assert.Equal(t, header, parsed)
}

func TestIndicationMessageRoundTrip(t *testing.T) {
	message := MessageFormat1{
		MeasData: []MeasurementData{
			{Records: []MeasurementRecord{
				{Kind: RecordInteger, Integer: 1024},
				{Kind: RecordReal, Real: -3.5},
				{Kind: RecordNoValue},
			}},
			{Records: []MeasurementRecord{{Kind: RecordInteger, Integer: 7}}, Incomplete: true},
		},
		MeasInfo:            []MeasurementItem{{Name: "DRB.UEThpDl", Labels: []LabelSpec{{}}}},
		GranularityPeriodMs: 1000,
	}

	encoded, err := Codec.Encode(SchemaIndicationMessage, message.Value())
	require.NoError(t, err)

	format1, err := DecodeMessage(encoded)
	require.NoError(t, err)

	parsed, err := ParseMessageFormat1(format1)
	require.NoError(t, err)
	assert.Equal(t, message, parsed)
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0xff, 0xff})
	var decodeErr *per.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestTimestampRoundTrip(t *testing.T) {
	start := time.Unix(1700000000, 250000000).UTC()
	decoded, err := DecodeTimestamp(EncodeTimestamp(start))
	require.NoError(t, err)
	assert.True(t, start.Equal(decoded))

	_, err = DecodeTimestamp([]byte{0x01})
	require.Error(t, err)
}
