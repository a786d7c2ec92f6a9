package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"roomchat/internal/realtime"
	"roomchat/internal/session"
	"roomchat/internal/storage"
)

// maxAvatarSize caps avatar uploads at 5 MiB
const maxAvatarSize = 5 << 20

// store is the subset of storage.Store the handlers depend on
type store interface {
	CreateRoom(ctx context.Context, name string) (storage.Room, error)
	RoomByCode(ctx context.Context, code string) (storage.Room, error)
	UpsertUser(ctx context.Context, roomID int64, name, profilePic string) (int64, error)
	CreateMessage(ctx context.Context, roomID, authorID int64, text string) (int64, error)
	MessagesByRoomID(ctx context.Context, roomID int64) ([]storage.Message, error)
	Participants(ctx context.Context, roomID int64) ([]storage.Participant, error)
	CreatePersonalMessage(ctx context.Context, roomID, fromID, toID int64, text string) (int64, error)
	PersonalThread(ctx context.Context, roomID, userA, userB int64) ([]storage.PersonalMessage, error)
}

// avatarStore is the object storage surface used by the upload endpoint
type avatarStore interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

type parsers struct {
	createRoomPool   fastjson.ParserPool
	joinRoomPool     fastjson.ParserPool
	sendMessagePool  fastjson.ParserPool
	sendPersonalPool fastjson.ParserPool
	threadPool       fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	store    store
	sessions *session.Manager
	hub      *realtime.Hub
	avatars  avatarStore
	parsers  parsers
}

// stringField extracts a non-empty trimmed string field from a parsed body,
// writing the error response itself when the field is unusable
func stringField(w http.ResponseWriter, v *fastjson.Value, name string) (string, bool) {
	if !v.Exists(name) {
		http.Error(w, "Missing Field \""+name+"\"", http.StatusBadRequest)
		return "", false
	}

	value := v.Get(name)
	if value.Type() != fastjson.TypeString {
		http.Error(w, "Field \""+name+"\" must be a string", http.StatusBadRequest)
		return "", false
	}

	s := strings.TrimSpace(strings.Trim(string(value.MarshalTo(nil)), `"`))
	if len(s) == 0 {
		http.Error(w, "Field \""+name+"\" must have non-zero length", http.StatusBadRequest)
		return "", false
	}

	return s, true
}

// idField extracts a positive 64-bit integer field from a parsed body
func idField(w http.ResponseWriter, v *fastjson.Value, name string) (int64, bool) {
	if !v.Exists(name) {
		http.Error(w, "Missing Field \""+name+"\"", http.StatusBadRequest)
		return 0, false
	}

	id, err := v.Get(name).Int64()
	if err != nil {
		http.Error(w, "Field \""+name+"\" must be a 64-bit integer value", http.StatusBadRequest)
		return 0, false
	}

	if id < 1 {
		http.Error(w, "Field \""+name+"\" must be a valid id greater than zero", http.StatusBadRequest)
		return 0, false
	}

	return id, true
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) marshalJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, status, payload)
}

// createRoom handles HTTP requests on "/rooms/create" endpoint
func (h *handler) createRoom(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.createRoomPool.Get()
	defer h.parsers.createRoomPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	name, ok := stringField(w, v, "name")
	if !ok {
		return
	}

	room, err := h.store.CreateRoom(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRoomExists):
			http.Error(w, "Room name already exists", http.StatusBadRequest)
		case errors.Is(err, storage.ErrCodeAllocation):
			h.logger.Error(err)
			http.Error(w, "Could not allocate a room code", http.StatusInternalServerError)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	payload := []byte(`{"id":` + strconv.FormatInt(room.ID, 10) + `,"code":"` + room.Code + `"}`)
	h.writeJSON(w, http.StatusCreated, payload)
}

// joinRoomResponse carries the identity fields the chat view needs plus the session token
type joinRoomResponse struct {
	Token    string `json:"token"`
	RoomID   int64  `json:"room_id"`
	UserID   int64  `json:"user_id"`
	RoomName string `json:"room_name"`
	RoomCode string `json:"room_code"`
}

// joinRoom handles HTTP requests on "/rooms/join" endpoint
func (h *handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.joinRoomPool.Get()
	defer h.parsers.joinRoomPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	code, ok := stringField(w, v, "code")
	if !ok {
		return
	}

	name, ok := stringField(w, v, "name")
	if !ok {
		return
	}

	// avatar URL is optional
	profilePic := ""
	if v.Exists("profile_pic") {
		picValue := v.Get("profile_pic")
		if picValue.Type() != fastjson.TypeString {
			http.Error(w, "Field \"profile_pic\" must be a string", http.StatusBadRequest)
			return
		}
		profilePic = strings.Trim(string(picValue.MarshalTo(nil)), `"`)
	}

	room, err := h.store.RoomByCode(r.Context(), strings.ToUpper(code))
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Invalid room code", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID, err := h.store.UpsertUser(r.Context(), room.ID, name, profilePic)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, "Failed to add user to the room", http.StatusInternalServerError)
		return
	}

	token, err := h.sessions.Issue(room.ID, userID, room.Name, room.Code)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.hub.Notify("users", "UPSERT", room.ID)

	h.marshalJSON(w, http.StatusOK, joinRoomResponse{
		Token:    token,
		RoomID:   room.ID,
		UserID:   userID,
		RoomName: room.Name,
		RoomCode: room.Code,
	})
}

// leaveRoom handles HTTP requests on "/rooms/leave" endpoint. It revokes the
// session and detaches any websocket the session had open.
func (h *handler) leaveRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.sessions.Revoke(claims)
	h.hub.DropSession(claims.ID)
	w.WriteHeader(http.StatusNoContent)
}

// sendMessage handles HTTP requests on "/messages/send" endpoint
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.sendMessagePool.Get()
	defer h.parsers.sendMessagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	text, ok := stringField(w, v, "message")
	if !ok {
		return
	}

	id, err := h.store.CreateMessage(r.Context(), claims.RoomID, claims.UserID, text)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageBadRoom):
			http.Error(w, "Room does not exist", http.StatusBadRequest)
		case errors.Is(err, storage.ErrMessageBadAuthor):
			http.Error(w, "Author does not exist", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, "Failed to send message", http.StatusInternalServerError)
		}
		return
	}

	h.hub.Notify("messages", "INSERT", claims.RoomID)

	payload := []byte(`{"id":` + strconv.FormatInt(id, 10) + `}`)
	h.writeJSON(w, http.StatusCreated, payload)
}

// roomMessagesResponse is the ordered history of a room with its display fields
type roomMessagesResponse struct {
	RoomName string            `json:"room_name"`
	RoomCode string            `json:"room_code"`
	Messages []storage.Message `json:"messages"`
}

// listMessages handles HTTP requests on "/messages/list" endpoint
func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	messages, err := h.store.MessagesByRoomID(r.Context(), claims.RoomID)
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotExist) {
			http.Error(w, "Room not found", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []storage.Message{}
	}

	h.marshalJSON(w, http.StatusOK, roomMessagesResponse{
		RoomName: claims.RoomName,
		RoomCode: claims.RoomCode,
		Messages: messages,
	})
}

// listParticipants handles HTTP requests on "/participants/list" endpoint
func (h *handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	participants, err := h.store.Participants(r.Context(), claims.RoomID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if participants == nil {
		participants = []storage.Participant{}
	}

	h.marshalJSON(w, http.StatusOK, participants)
}

// sendPersonal handles HTTP requests on "/personal/send" endpoint
func (h *handler) sendPersonal(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.sendPersonalPool.Get()
	defer h.parsers.sendPersonalPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	toID, ok := idField(w, v, "to")
	if !ok {
		return
	}

	text, ok := stringField(w, v, "message")
	if !ok {
		return
	}

	id, err := h.store.CreatePersonalMessage(r.Context(), claims.RoomID, claims.UserID, toID, text)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrPersonalBadPeer):
			http.Error(w, "Recipient does not exist", http.StatusBadRequest)
		case errors.Is(err, storage.ErrPersonalWrongRoom):
			http.Error(w, "Recipient is not a member of the room", http.StatusBadRequest)
		case errors.Is(err, storage.ErrMessageBadRoom), errors.Is(err, storage.ErrMessageBadAuthor):
			http.Error(w, "Bad room or sender id", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, "Failed to send message", http.StatusInternalServerError)
		}
		return
	}

	h.hub.Notify("personal_messages", "INSERT", claims.RoomID)

	payload := []byte(`{"id":` + strconv.FormatInt(id, 10) + `}`)
	h.writeJSON(w, http.StatusCreated, payload)
}

// personalThread handles HTTP requests on "/personal/thread" endpoint
func (h *handler) personalThread(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.threadPool.Get()
	defer h.parsers.threadPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	withID, ok := idField(w, v, "with")
	if !ok {
		return
	}

	messages, err := h.store.PersonalThread(r.Context(), claims.RoomID, claims.UserID, withID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []storage.PersonalMessage{}
	}

	h.marshalJSON(w, http.StatusOK, messages)
}

// uploadAvatar handles multipart HTTP requests on "/avatars/upload" endpoint
func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.Header().Set("Allow", "POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if h.avatars == nil {
		http.Error(w, "Avatar storage is not configured", http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		http.Error(w, "Malformed multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file part \"file\"", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxAvatarSize {
		http.Error(w, "File is too large", http.StatusRequestEntityTooLarge)
		return
	}

	url, err := h.avatars.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	h.marshalJSON(w, http.StatusCreated, map[string]string{"url": url})
}
