package e2ap

import (
	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/per"
)

// Indication is the typed content of a RIC Indication message. Header and
// Message carry the E2SM payloads still encoded.
type Indication struct {
	RequestorID    int64
	InstanceID     int64
	RANFunctionID  int64
	ActionID       int64
	SequenceNumber *int64
	Type           string
	Header         []byte
	Message        []byte
	CallProcessID  []byte
}

// IE is one protocol IE of an E2AP message.
type IE struct {
	ID          int64
	Criticality string
	Tag         string
	Value       per.Value
}

// BuildIndication assembles an E2AP-PDU initiatingMessage carrying a RIC
// Indication. IEs are emitted in the order defined by the procedure.
func BuildIndication(indication Indication) per.Value {
	indicationType := indication.Type
	if indicationType == "" {
		indicationType = "report"
	}

	ies := per.List{
		ieField(IDRICrequestID, CriticalityReject, IERICrequestID, per.Sequence{
			"ricRequestorID": per.Integer(indication.RequestorID),
			"ricInstanceID":  per.Integer(indication.InstanceID),
		}),
		ieField(IDRANfunctionID, CriticalityReject, IERANfunctionID, per.Integer(indication.RANFunctionID)),
		ieField(IDRICactionID, CriticalityReject, IERICactionID, per.Integer(indication.ActionID)),
	}
	if indication.SequenceNumber != nil {
		ies = append(ies, ieField(IDRICindicationSN, CriticalityReject, IERICindicationSN,
			per.Integer(*indication.SequenceNumber)))
	}
	ies = append(ies,
		ieField(IDRICindicationType, CriticalityReject, IERICindicationType, per.Enum(indicationType)),
		ieField(IDRICindicationHeader, CriticalityReject, IERICindicationHeader, per.Bytes(indication.Header)),
		ieField(IDRICindicationMessage, CriticalityReject, IERICindicationMessage, per.Bytes(indication.Message)),
	)
	if indication.CallProcessID != nil {
		ies = append(ies, ieField(IDRICcallProcessID, CriticalityReject, IERICcallProcessID,
			per.Bytes(indication.CallProcessID)))
	}

	return per.Choice{
		Tag: InitiatingMessage,
		Value: per.Sequence{
			"procedureCode": per.Integer(ProcedureRICindication),
			"criticality":   per.Enum(CriticalityIgnore),
			"value": per.Choice{
				Tag:   ValueRICindication,
				Value: per.Sequence{"protocolIEs": ies},
			},
		},
	}
}

// EncodeIndication builds and encodes a RIC Indication envelope.
func EncodeIndication(indication Indication) ([]byte, error) {
	return Codec.Encode(SchemaPDU, BuildIndication(indication))
}

// Decode decodes an E2AP-PDU envelope.
func Decode(data []byte) (per.Value, error) {
	return Codec.Decode(SchemaPDU, data)
}

// ProtocolIEs converts the protocolIEs container of a message value
// (for example the RICindication sequence) into typed IEs.
func ProtocolIEs(message per.Value) ([]IE, error) {
	container, err := per.Lookup(message, "protocolIEs")
	if err != nil {
		return nil, err
	}
	list, err := per.AsList(container)
	if err != nil {
		return nil, errors.Wrap(err, "protocolIEs")
	}

	ies := make([]IE, 0, len(list))
	for index, item := range list {
		field, err := per.AsSequence(item)
		if err != nil {
			return nil, errors.Wrapf(err, "protocolIEs[%d]", index)
		}
		id, err := per.AsInteger(field["id"])
		if err != nil {
			return nil, errors.Wrapf(err, "protocolIEs[%d].id", index)
		}
		criticality, err := per.AsEnum(field["criticality"])
		if err != nil {
			return nil, errors.Wrapf(err, "protocolIEs[%d].criticality", index)
		}
		value, err := per.AsChoice(field["value"])
		if err != nil {
			return nil, errors.Wrapf(err, "protocolIEs[%d].value", index)
		}
		ies = append(ies, IE{ID: id, Criticality: criticality, Tag: value.Tag, Value: value.Value})
	}
	return ies, nil
}

func ieField(id int64, criticality, tag string, value per.Value) per.Value {
	return per.Sequence{
		"id":          per.Integer(id),
		"criticality": per.Enum(criticality),
		"value":       per.Choice{Tag: tag, Value: value},
	}
}
