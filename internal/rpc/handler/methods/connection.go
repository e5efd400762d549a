package methods

import (
	"errors"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ServerErrorPrefix starts the filename of the placeholder tab shown when the
// snapshot cannot be built.
const ServerErrorPrefix = "SERVER ERROR: "

// Connected brings the snapshot in line with the data directory and sends it
// to a new connection. When reconciliation changed the snapshot every client
// receives it.
func (s *TabsService) Connected(connID string) {
	changed, err := s.state.ReconcileFromDisk()
	if err != nil {
		log.Warn().Err(err).Str("client_id", connID).Msg("reconcile on connect failed")
	}

	info, err := s.state.GetSnapshot()
	if err != nil {
		if !errors.Is(err, domain.ErrPermissionDenied) {
			log.Error().Err(err).Str("client_id", connID).Msg("failed to build snapshot for new connection")
			return
		}
		log.Error().Err(err).Str("client_id", connID).Msg("data directory is not usable")
		s.hub.PublishTo([]string{connID}, events.NewInfoEvent(serverErrorSnapshot(err)))
		return
	}

	if changed {
		s.hub.Publish(events.NewInfoEvent(info))
		return
	}
	s.hub.PublishTo([]string{connID}, events.NewInfoEvent(info))
}

// Disconnected drops every tab subscription held by the connection.
func (s *TabsService) Disconnected(connID string) {
	if n := s.subs.RemoveAll(connID); n > 0 {
		log.Debug().Str("client_id", connID).Int("subscriptions", n).Msg("subscriptions released")
	}
}

func serverErrorSnapshot(err error) *domain.Info {
	fileID := uuid.NewString()
	return &domain.Info{
		ActiveFileID: &fileID,
		ChangeToken:  uuid.Nil.String(),
		TabInfos: []domain.TabInfo{{
			Filename:    ServerErrorPrefix + err.Error(),
			FileID:      fileID,
			IsProtected: true,
		}},
	}
}
