package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "github.com/yasser311511/chat-app2/internal/infrastructure/cache/port"
	"github.com/yasser311511/chat-app2/internal/infrastructure/realtime"
	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/usecase"
	repoAdapter "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/adapter"
)

// ChatSocketController handles the websocket endpoint for realtime chat
// traffic. A connection must authenticate (register, login or resume) before
// any other frame is accepted.
type ChatSocketController struct {
	router          *realtime.Router
	eng             *engine.Engine
	registerUC      *usecase.RegisterUserUseCase
	loginUC         *usecase.LoginUseCase
	resumeUC        *usecase.ResolveSessionUseCase
	logoutUC        *usecase.LogoutUseCase
	changePassUC    *usecase.ChangePasswordUseCase
	inflightTimeout time.Duration
}

func NewChatSocketController(pool *pgxpool.Pool, cache cacheport.Cache, router *realtime.Router, eng *engine.Engine) *ChatSocketController {
	store := repoAdapter.NewPgStore(pool)
	return &ChatSocketController{
		router:          router,
		eng:             eng,
		registerUC:      usecase.NewRegisterUserUseCase(store),
		loginUC:         usecase.NewLoginUseCase(store, store, cache, eng),
		resumeUC:        usecase.NewResolveSessionUseCase(store, store, cache, eng),
		logoutUC:        usecase.NewLogoutUseCase(store, cache),
		changePassUC:    usecase.NewChangePasswordUseCase(store, store),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when deployed behind a gateway.
		return true
	},
}

type inboundFrame struct {
	Type     string  `json:"type"`
	Username string  `json:"username,omitempty"`
	Password string  `json:"password,omitempty"`
	Gender   string  `json:"gender,omitempty"`
	Token    string  `json:"token,omitempty"`
	RoomID   string  `json:"room_id,omitempty"`
	Content  string  `json:"content,omitempty"`
	Kind     *int    `json:"kind,omitempty"`
	ReplyTo  *string `json:"reply_to,omitempty"`
	BeforeID string  `json:"before_id,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	Target   string  `json:"target,omitempty"`
	Minutes  int     `json:"minutes,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Rank     string  `json:"rank,omitempty"`
	NewName  string  `json:"new_name,omitempty"`
	Avatar   string  `json:"avatar,omitempty"`
	Name     string  `json:"name,omitempty"`
	Icon     string  `json:"icon,omitempty"`
	Desc     string  `json:"description,omitempty"`
	NewPass  string  `json:"new_password,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ackFrame struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
}

type joinedFrame struct {
	Type    string         `json:"type"`
	RoomID  string         `json:"room_id"`
	Members []chat.Member  `json:"members"`
	History []chat.Message `json:"history"`
}

type historyFrame struct {
	Type     string         `json:"type"`
	RoomID   string         `json:"room_id"`
	Messages []chat.Message `json:"messages"`
}

type ranksFrame struct {
	Type        string                `json:"type"`
	Ranks       []chat.Rank           `json:"ranks"`
	Assignments []chat.RankAssignment `json:"assignments"`
}

const defaultReadTimeout = 60 * time.Second

// Handle upgrades HTTP connections to websocket and processes frames until
// the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; nothing more to do.
			return
		}

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		identity, token, ok := ctl.authenticate(c, ws)
		if !ok {
			_ = ws.Close()
			return
		}

		conn := realtime.NewConnection(identity.Username, ws)
		ctl.router.Attach(conn)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
			ctl.eng.Disconnect(ctx, conn.ID)
			cancel()
			ctl.router.Detach(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ctl.reply(conn, ackFrame{Type: "connected", Username: identity.Username, Token: token})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyError(conn, "bad_request", "invalid payload")
				continue
			}

			if frame.Type == "logout" {
				ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
				_ = ctl.logoutUC.Execute(ctx, token)
				cancel()
				ctl.reply(conn, ackFrame{Type: "logged_out"})
				return
			}
			ctl.dispatch(c, conn, frame)
		}
	}
}

// authenticate consumes frames until a register, login or resume succeeds.
// It reads directly from the raw socket since no Connection exists yet.
func (ctl *ChatSocketController) authenticate(c *gin.Context, ws *websocket.Conn) (*chat.Identity, string, bool) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, "", false
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			ctl.writeError(ws, "bad_request", "invalid payload")
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
		switch frame.Type {
		case "register":
			_, err := ctl.registerUC.Execute(ctx, usecase.RegisterUserInput{
				Username: frame.Username, Password: frame.Password, Gender: frame.Gender,
			})
			if err != nil {
				cancel()
				ctl.writeError(ws, errorCode(err), err.Error())
				continue
			}
			fallthrough
		case "login":
			session, err := ctl.loginUC.Execute(ctx, usecase.LoginInput{
				Username: frame.Username, Password: frame.Password,
			})
			cancel()
			if err != nil {
				ctl.writeError(ws, errorCode(err), err.Error())
				continue
			}
			identity := chat.Identity{Username: session.Username, PasswordHash: session.PasswordHash}
			return &identity, session.Token, true
		case "resume":
			identity, err := ctl.resumeUC.Execute(ctx, frame.Token)
			cancel()
			if err != nil {
				ctl.writeError(ws, errorCode(err), err.Error())
				continue
			}
			return identity, frame.Token, true
		default:
			cancel()
			ctl.writeError(ws, "unauthorized", "authenticate first")
		}
	}
}

func (ctl *ChatSocketController) dispatch(c *gin.Context, conn *realtime.Connection, frame inboundFrame) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	actor := conn.Username
	target := frame.Target
	if target == "" {
		target = actor
	}

	switch frame.Type {
	case "join":
		result, err := ctl.eng.Join(ctx, conn.ID, actor, frame.RoomID)
		if err != nil {
			ctl.replyError(conn, errorCode(err), err.Error())
			return
		}
		ctl.reply(conn, joinedFrame{Type: "joined", RoomID: result.RoomID, Members: result.Members, History: result.History})
	case "leave":
		ctl.eng.Leave(ctx, conn.ID)
		ctl.reply(conn, ackFrame{Type: "left"})
	case "message":
		kind := chat.MessageKindText
		if frame.Kind != nil {
			kind = chat.MessageKind(*frame.Kind)
		}
		if kind != chat.MessageKindText && kind != chat.MessageKindImage {
			ctl.replyError(conn, "bad_request", "unsupported message kind")
			return
		}
		if _, err := ctl.eng.Send(ctx, conn.ID, frame.Content, kind, frame.ReplyTo); err != nil {
			ctl.replyError(conn, errorCode(err), err.Error())
		}
	case "history_before":
		messages, err := ctl.eng.Before(frame.RoomID, frame.BeforeID, frame.Limit)
		if err != nil {
			ctl.replyError(conn, errorCode(err), err.Error())
			return
		}
		ctl.reply(conn, historyFrame{Type: "history", RoomID: frame.RoomID, Messages: messages})
	case "create_room":
		ctl.result(conn, "room_created", ctl.eng.CreateRoom(ctx, actor, chat.Room{
			ID: frame.RoomID, Name: frame.Name, Icon: frame.Icon, Description: frame.Desc,
		}))
	case "delete_room":
		ctl.result(conn, "room_deleted", ctl.eng.DeleteRoom(ctx, actor, frame.RoomID))
	case "mute":
		minutes := frame.Minutes
		if minutes <= 0 {
			minutes = 10
		}
		ctl.result(conn, "muted", ctl.eng.Mute(ctx, actor, frame.Target, time.Duration(minutes)*time.Minute))
	case "unmute":
		ctl.result(conn, "unmuted", ctl.eng.Unmute(ctx, actor, frame.Target))
	case "ban_room":
		ctl.result(conn, "room_banned", ctl.eng.BanFromRoom(ctx, actor, frame.Target, frame.RoomID, frame.Reason))
	case "unban_room":
		ctl.result(conn, "room_unbanned", ctl.eng.UnbanFromRoom(ctx, actor, frame.Target, frame.RoomID))
	case "ban_site":
		ctl.result(conn, "site_banned", ctl.eng.BanFromSite(ctx, actor, frame.Target, frame.Reason))
	case "unban_site":
		ctl.result(conn, "site_unbanned", ctl.eng.UnbanFromSite(ctx, actor, frame.Target))
	case "assign_rank":
		ctl.result(conn, "rank_assigned", ctl.eng.AssignRank(ctx, actor, frame.Target, frame.Rank))
	case "remove_rank":
		ctl.result(conn, "rank_removed", ctl.eng.RemoveRank(ctx, actor, frame.Target))
	case "list_ranks":
		ctl.reply(conn, ranksFrame{Type: "ranks", Ranks: ctl.eng.Ranks(), Assignments: ctl.eng.ListAssignments()})
	case "rename":
		ctl.result(conn, "rename_ok", ctl.eng.Rename(ctx, actor, target, frame.NewName))
	case "change_password":
		// invalidates every session for the identity, including this one;
		// the connection stays up but the token must be re-issued via login
		ctl.result(conn, "password_changed", ctl.changePassUC.Execute(ctx, usecase.ChangePasswordInput{
			Username: actor, OldPassword: frame.Password, NewPassword: frame.NewPass,
		}))
	case "set_avatar":
		ctl.result(conn, "avatar_set", ctl.eng.SetAvatar(ctx, actor, target, frame.Avatar))
	case "delete_user":
		ctl.result(conn, "user_deleted", ctl.eng.DeleteIdentity(ctx, actor, frame.Target))
	default:
		ctl.replyError(conn, "unsupported_type", "unknown frame type")
	}
}

// result sends an ack on success or the mapped error frame on failure.
func (ctl *ChatSocketController) result(conn *realtime.Connection, ackType string, err error) {
	if err != nil {
		ctl.replyError(conn, errorCode(err), err.Error())
		return
	}
	ctl.reply(conn, ackFrame{Type: ackType})
}

func (ctl *ChatSocketController) reply(conn *realtime.Connection, v any) {
	if payload, err := json.Marshal(v); err == nil {
		_ = conn.Send(payload)
	}
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code, msg string) {
	ctl.reply(conn, errorFrame{Type: "error", Code: code, Error: msg})
}

func (ctl *ChatSocketController) writeError(ws *websocket.Conn, code, msg string) {
	if payload, err := json.Marshal(errorFrame{Type: "error", Code: code, Error: msg}); err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = ws.WriteMessage(websocket.TextMessage, payload)
	}
}

// errorCode maps domain errors to wire-level error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrBadCredentials), errors.Is(err, chat.ErrSessionInvalid):
		return "unauthorized"
	case errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrOwnerTarget), errors.Is(err, chat.ErrProtectedRoom):
		return "forbidden"
	case errors.Is(err, chat.ErrMuted):
		return "muted"
	case errors.Is(err, chat.ErrSiteBanned), errors.Is(err, chat.ErrBannedFromRoom):
		return "banned"
	case errors.Is(err, chat.ErrRoomNotFound), errors.Is(err, chat.ErrIdentityNotFound), errors.Is(err, chat.ErrRankNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrAlreadyInRoom), errors.Is(err, chat.ErrNameTaken), errors.Is(err, chat.ErrRoomExists):
		return "conflict"
	case errors.Is(err, chat.ErrStoreUnavailable), errors.Is(err, usecase.ErrPersistence):
		return "unavailable"
	default:
		return "bad_request"
	}
}
