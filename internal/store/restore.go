package store

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ports"
)

// Restore replays the assets command log into the party collections. Local
// parties must be registered (AddParty) before restoring; entries owned by
// an unknown party are skipped with a warning rather than creating party
// state.
func (s *Store) Restore() error {
	entries, err := s.clog.Load(ports.LogAssets)
	if err != nil {
		return fmt.Errorf("failed to load assets log: %w", err)
	}
	applied := 0
	for _, e := range entries {
		if err := s.apply(e); err != nil {
			s.log.Warn("Skipping unreplayable asset entry",
				zap.String("cmd", e.Command),
				zap.Error(err),
			)
			continue
		}
		applied++
	}
	s.log.Info("Party store restored",
		zap.Int("entries", len(entries)),
		zap.Int("applied", applied),
	)
	return nil
}

func (s *Store) apply(e ports.LoggedCommand) error {
	switch e.Command {
	case cmdAddLocation, cmdUpdateLocation:
		var loc domain.Location
		if err := json.Unmarshal(e.Payload, &loc); err != nil {
			return err
		}
		pd, err := s.party(loc.PartyKey())
		if err != nil {
			return err
		}
		pd.locations.Set(loc.ID, &loc)

	case cmdRemoveLocation:
		var loc domain.Location
		if err := json.Unmarshal(e.Payload, &loc); err != nil {
			return err
		}
		pd, err := s.party(loc.PartyKey())
		if err != nil {
			return err
		}
		pd.locations.Delete(loc.ID)

	case cmdAddTariff, cmdUpdateTariff:
		var t domain.Tariff
		if err := json.Unmarshal(e.Payload, &t); err != nil {
			return err
		}
		pd, err := s.party(t.PartyKey())
		if err != nil {
			return err
		}
		series, ok := pd.tariffs.Get(t.ID)
		if !ok {
			series = &tariffSeries{}
		}
		pd.tariffs.Set(t.ID, series.withVersion(&t))

	case cmdRemoveTariff:
		var p struct {
			Party domain.PartyKey `json:"party"`
			ID    domain.TariffID `json:"id"`
		}
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		pd, err := s.party(p.Party)
		if err != nil {
			return err
		}
		pd.tariffs.Delete(p.ID)

	case cmdAddSession, cmdUpdateSession:
		var sess domain.Session
		if err := json.Unmarshal(e.Payload, &sess); err != nil {
			return err
		}
		pd, err := s.party(sess.PartyKey())
		if err != nil {
			return err
		}
		pd.sessions.Set(sess.ID, &sess)

	case cmdRemoveSession:
		var sess domain.Session
		if err := json.Unmarshal(e.Payload, &sess); err != nil {
			return err
		}
		pd, err := s.party(sess.PartyKey())
		if err != nil {
			return err
		}
		pd.sessions.Delete(sess.ID)

	case cmdAddToken, cmdUpdateToken:
		var ts domain.TokenStatus
		if err := json.Unmarshal(e.Payload, &ts); err != nil {
			return err
		}
		pd, err := s.party(ts.Token.PartyKey())
		if err != nil {
			return err
		}
		pd.tokens.Set(ts.Token.ID, &ts)

	case cmdRemoveToken:
		var ts domain.TokenStatus
		if err := json.Unmarshal(e.Payload, &ts); err != nil {
			return err
		}
		pd, err := s.party(ts.Token.PartyKey())
		if err != nil {
			return err
		}
		pd.tokens.Delete(ts.Token.ID)

	case cmdAddCDR, cmdUpdateCDR:
		var cdr domain.CDR
		if err := json.Unmarshal(e.Payload, &cdr); err != nil {
			return err
		}
		pd, err := s.party(cdr.PartyKey())
		if err != nil {
			return err
		}
		pd.cdrs.Set(cdr.ID, &cdr)

	case cmdRemoveCDR:
		var cdr domain.CDR
		if err := json.Unmarshal(e.Payload, &cdr); err != nil {
			return err
		}
		pd, err := s.party(cdr.PartyKey())
		if err != nil {
			return err
		}
		pd.cdrs.Delete(cdr.ID)

	default:
		return fmt.Errorf("unknown assets command %q", e.Command)
	}
	return nil
}
