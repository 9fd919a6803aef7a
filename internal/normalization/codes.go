package normalization

import "foundersnet-telemetry/internal/domain"

// On-chain u8 encodings used by the market program.
const (
	statusCodeOpen     uint8 = 0
	statusCodeResolved uint8 = 1

	outcomeCodeYes     uint8 = 0
	outcomeCodeNo      uint8 = 1
	outcomeCodeInvalid uint8 = 2
)

// eventTypeCodes maps event types to their on-chain codes.
var eventTypeCodes = map[domain.EventType]uint8{
	domain.EventTypeSeriesA:     0,
	domain.EventTypeSeriesB:     1,
	domain.EventTypeAcquisition: 2,
	domain.EventTypeIPO:         3,
	domain.EventTypeOther:       4,
}

// StatusFromCode converts an on-chain status code.
// Unrecognized codes map to StatusOpen.
func StatusFromCode(code uint8) domain.Status {
	status, _ := StatusFromCodeChecked(code)
	return status
}

// StatusFromCodeChecked behaves like StatusFromCode and also reports
// whether the code was recognized.
func StatusFromCodeChecked(code uint8) (domain.Status, bool) {
	switch code {
	case statusCodeOpen:
		return domain.StatusOpen, true
	case statusCodeResolved:
		return domain.StatusResolved, true
	default:
		return domain.StatusOpen, false
	}
}

// OutcomeFromCode converts an optional on-chain outcome code.
// Returns false for a nil code (not resolved) and for unrecognized codes;
// callers tell the two apart by checking the market status.
func OutcomeFromCode(code *uint8) (domain.Outcome, bool) {
	if code == nil {
		return "", false
	}
	switch *code {
	case outcomeCodeYes:
		return domain.OutcomeYes, true
	case outcomeCodeNo:
		return domain.OutcomeNo, true
	case outcomeCodeInvalid:
		return domain.OutcomeInvalid, true
	default:
		return "", false
	}
}

// EventTypeFromCode converts an on-chain event type code.
func EventTypeFromCode(code uint8) (domain.EventType, bool) {
	if int(code) >= len(domain.EventTypes) {
		return "", false
	}
	return domain.EventTypes[code], true
}

// EventTypeToCode converts an event type to its on-chain code.
// Unrecognized values encode as OTHER.
func EventTypeToCode(e domain.EventType) uint8 {
	if code, ok := eventTypeCodes[e]; ok {
		return code
	}
	return eventTypeCodes[domain.EventTypeOther]
}
