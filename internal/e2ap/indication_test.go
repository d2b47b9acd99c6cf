package e2ap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/hwxapp/internal/per"
)

func TestIndicationRoundTrip(t *testing.T) {
	sequenceNumber := int64(42)
	encoded, err := EncodeIndication(Indication{
		RequestorID:    123,
		InstanceID:     1,
		RANFunctionID:  2,
		ActionID:       0,
		SequenceNumber: &sequenceNumber,
		Header:         []byte{0x01, 0x02},
		Message:        []byte{0x03},
	})
	require.NoError(t, err)

	pdu, err := Decode(encoded)
	require.NoError(t, err)

	message, err := per.Lookup(pdu, InitiatingMessage, "value", ValueRICindication)
	require.NoError(t, err)

	ies, err := ProtocolIEs(message)
	require.NoError(t, err)

	tags := make([]string, 0, len(ies))
	for _, ie := range ies {
		tags = append(tags, ie.Tag)
	}
	assert.Equal(t, []string{
		IERICrequestID, IERANfunctionID, IERICactionID, IERICindicationSN,
		IERICindicationType, IERICindicationHeader, IERICindicationMessage,
	}, tags)

	assert.Equal(t, IDRICindicationHeader, ies[5].ID)
	assert.Equal(t, per.Bytes{0x01, 0x02}, ies[5].Value)
	assert.Equal(t, per.Enum("report"), ies[4].Value)
	assert.Equal(t, per.Integer(42), ies[3].Value)
}

func TestSuccessfulOutcomeEncodes(t *testing.T) {
	pdu := per.Choice{
		Tag: SuccessfulOutcome,
		Value: per.Sequence{
			"procedureCode": per.Integer(ProcedureRICsubscription),
			"criticality":   per.Enum(CriticalityReject),
			"value": per.Choice{
				Tag:   ValueRICsubscriptionResponse,
				Value: per.Sequence{"protocolIEs": per.List{}},
			},
		},
	}
	encoded, err := Codec.Encode(SchemaPDU, pdu)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, pdu, decoded)
}

func TestIndicationRejectsOversizedIE(t *testing.T) {
	_, err := EncodeIndication(Indication{RANFunctionID: 5000})
	var encodeErr *per.EncodeError
	require.ErrorAs(t, err, &encodeErr)
	assert.Contains(t, encodeErr.Field, IERANfunctionID)
}
