package markets

import (
	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/normalization"
	"foundersnet-telemetry/internal/observability"
	"foundersnet-telemetry/internal/program"
)

// toDomain normalizes a raw account. Unrecognized enum codes keep their
// safe defaults and are reported through metrics and the logger.
func toDomain(raw program.RawMarket, logger *logrus.Entry) domain.Market {
	m := domain.Market{
		PublicKey:      raw.PublicKey,
		Title:          raw.Title,
		Description:    raw.Description,
		Category:       raw.Category,
		StartupName:    raw.StartupName,
		ResolutionDate: raw.ResolutionDate,
		Creator:        raw.Creator.String(),
		Resolver:       raw.Resolver.String(),
		YesPool:        raw.YesPool,
		NoPool:         raw.NoPool,
		TotalVolume:    raw.TotalVolume,
		CreatedAt:      raw.CreatedAt,
	}

	status, ok := normalization.StatusFromCodeChecked(raw.Status)
	m.Status = status
	if !ok {
		unrecognized(logger, raw.PublicKey, "status", raw.Status)
	}

	if outcome, ok := normalization.OutcomeFromCode(raw.Outcome); ok {
		m.Outcome = &outcome
	} else if raw.Outcome != nil {
		unrecognized(logger, raw.PublicKey, "outcome", *raw.Outcome)
	}

	if eventType, ok := normalization.EventTypeFromCode(raw.EventType); ok {
		m.EventType = &eventType
	} else {
		unrecognized(logger, raw.PublicKey, "event_type", raw.EventType)
	}

	return m
}

func unrecognized(logger *logrus.Entry, pubkey, field string, code uint8) {
	observability.RecordUnrecognizedEncoding(field)
	logger.WithFields(logrus.Fields{
		"pubkey": pubkey,
		"field":  field,
		"code":   code,
	}).Warn("unrecognized on-chain code")
}
