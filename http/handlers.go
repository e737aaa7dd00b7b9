// http/handlers.go
package http

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/markdown"
	"github.com/ViniZap4/lumi-notes/ws"
)

var errNoPrincipal = errors.New("http: route reached without an identity")

type sessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *domain.Identity `json:"user"`
}

func decodeJSON(c *fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

// noteID copies the id route param out of the request buffer, which fiber
// reuses once the handler returns.
func noteID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

func principal(c *fiber.Ctx) (*domain.Identity, error) {
	identity, ok := auth.Principal(c)
	if !ok {
		return nil, errNoPrincipal
	}
	return identity, nil
}

func (s *Server) HandleHealth(c *fiber.Ctx) error {
	if s.ping != nil {
		if err := s.ping(c.UserContext()); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) HandleRegister(c *fiber.Ctx) error {
	var req struct {
		Login       string `json:"login"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return err
	}

	session, err := s.accounts.Register(c.UserContext(), auth.Registration{
		Login:       req.Login,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("user_id", session.Identity.ID).Msg("account registered")
	return c.Status(fiber.StatusCreated).JSON(sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.Identity,
	})
}

func (s *Server) HandleLogin(c *fiber.Ctx) error {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return err
	}

	session, err := s.accounts.Login(c.UserContext(), req.Login, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.Identity,
	})
}

// HandleValidateToken answers whether a token is usable. An unusable token
// is a normal answer here, not an error.
func (s *Server) HandleValidateToken(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return err
	}

	identity, err := s.resolver.ResolveToken(c.UserContext(), req.Token)
	if auth.IsAuthFailure(err) {
		s.metrics.AuthFailures.WithLabelValues(auth.FailureKind(err)).Inc()
		return c.JSON(fiber.Map{"valid": false})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"valid": true, "user": identity})
}

func (s *Server) HandleMe(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}
	return c.JSON(identity)
}

func (s *Server) HandleNotes(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	notes, err := s.notes.List(c.UserContext(), identity)
	s.metrics.NoteOp("list", err)
	if err != nil {
		return err
	}
	return c.JSON(notes)
}

func (s *Server) HandleGetNote(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	note, err := s.notes.Get(c.UserContext(), identity, noteID(c))
	s.metrics.NoteOp("get", err)
	if err != nil {
		return err
	}
	return c.JSON(note)
}

func (s *Server) HandleCreateNote(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	var draft domain.NoteDraft
	if err := decodeJSON(c, &draft); err != nil {
		return err
	}
	draft.Tags = domain.UniqueTags(draft.Tags)

	return s.create(c, identity, draft)
}

// HandleImportNote creates a note from a markdown document with YAML
// front matter.
func (s *Server) HandleImportNote(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	draft, err := markdown.Parse(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	draft.Tags = domain.UniqueTags(draft.Tags)

	return s.create(c, identity, draft)
}

func (s *Server) create(c *fiber.Ctx, identity *domain.Identity, draft domain.NoteDraft) error {
	note, err := s.notes.Create(c.UserContext(), identity, draft)
	s.metrics.NoteOp("create", err)
	if err != nil {
		return err
	}

	s.hub.Broadcast(identity.ID, ws.NoteCreated, note)
	return c.Status(fiber.StatusCreated).JSON(note)
}

func (s *Server) HandleUpdateNote(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	var patch domain.NotePatch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	if patch.Tags != nil {
		tags := domain.UniqueTags(*patch.Tags)
		patch.Tags = &tags
	}

	note, err := s.notes.Update(c.UserContext(), identity, noteID(c), patch)
	s.metrics.NoteOp("update", err)
	if err != nil {
		return err
	}

	s.hub.Broadcast(identity.ID, ws.NoteUpdated, note)
	return c.JSON(note)
}

func (s *Server) HandleDeleteNote(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	id := noteID(c)
	err = s.notes.Delete(c.UserContext(), identity, id)
	s.metrics.NoteOp("delete", err)
	if err != nil {
		return err
	}

	s.hub.Broadcast(identity.ID, ws.NoteDeleted, &domain.Note{ID: id, OwnerID: identity.ID})
	return c.JSON(fiber.Map{"message": "Note deleted"})
}

func (s *Server) HandleExportNote(c *fiber.Ctx) error {
	identity, err := principal(c)
	if err != nil {
		return err
	}

	note, err := s.notes.Get(c.UserContext(), identity, noteID(c))
	s.metrics.NoteOp("export", err)
	if err != nil {
		return err
	}

	doc, err := markdown.Render(note)
	if err != nil {
		return err
	}
	c.Attachment(note.ID + ".md")
	c.Set(fiber.HeaderContentType, markdown.ContentType)
	return c.Send(doc)
}

func (s *Server) HandleWebSocket(conn *websocket.Conn) {
	identity, ok := conn.Locals(auth.LocalsKey).(*domain.Identity)
	if !ok || identity == nil {
		conn.Close()
		return
	}
	s.hub.HandleConnection(identity.ID, conn)
}
