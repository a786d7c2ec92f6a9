package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"roomchat/internal/storage/pgxzap"
)

var (
	ErrRoomExists        = errors.New("room already exists")
	ErrRoomNotExist      = errors.New("room does not exist")
	ErrCodeAllocation    = errors.New("cannot allocate unique room code")
	ErrMessageBadRoom    = errors.New("bad room id")
	ErrMessageBadAuthor  = errors.New("bad author id")
	ErrPersonalBadPeer   = errors.New("bad peer id")
	ErrPersonalWrongRoom = errors.New("peer is not a room member")
	ErrUserBadRoom       = errors.New("bad room id for user")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger  *zap.SugaredLogger
	db      *pgxpool.Pool
	newCode func() string
}

// New sets provided zap.Logger via pgxzap to pgxpool.Pool and returns instance of Store struct
func New(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = pgxzap.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger:  logger,
		db:      pool,
		newCode: newRoomCode,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateRoom creates a room with a freshly generated join code and returns it.
// A code collision retries allocation with a new code up to maxCodeAttempts times;
// a name collision returns ErrRoomExists immediately.
func (s *Store) CreateRoom(ctx context.Context, name string) (Room, error) {
	s.logger.Debugf("Creating room (%s)", name)

	sql := "insert into rooms (room_name, room_code, created_at) values ($1, $2, $3) returning id, created_at"

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := Room{Name: name, Code: s.newCode()}

		err := s.db.QueryRow(ctx, sql, room.Name, room.Code, time.Now()).Scan(&room.ID, &room.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				if pgErr.ConstraintName == "rooms_room_code_key" {
					s.logger.Debugf("Room code collision on attempt %d, retrying", attempt+1)
					continue
				}
				return Room{}, ErrRoomExists
			}
			return Room{}, err
		}

		s.logger.Debugf("Created room (%s) with id %d and code %s", name, room.ID, room.Code)

		return room, nil
	}

	return Room{}, ErrCodeAllocation
}

// RoomByCode resolves a join code to a room
func (s *Store) RoomByCode(ctx context.Context, code string) (Room, error) {
	s.logger.Debugf("Resolving room code (%s)", code)

	var room Room
	sql := "select id, room_name, room_code, created_at from rooms where room_code = $1"
	err := s.db.QueryRow(ctx, sql, code).Scan(&room.ID, &room.Name, &room.Code, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrRoomNotExist
		}
		return Room{}, err
	}

	return room, nil
}

// UpsertUser inserts a user keyed by (room_id, user_name) and returns its id.
// Joining again with the same name in the same room updates the avatar and
// returns the existing id instead of creating a duplicate row.
func (s *Store) UpsertUser(ctx context.Context, roomID int64, name, profilePic string) (int64, error) {
	s.logger.Debugf("Upserting user (%s) in room (id: %d)", name, roomID)

	var id int64
	sql := `insert into users (room_id, user_name, profile_pic, created_at)
			values ($1, $2, nullif($3, ''), $4)
			on conflict (room_id, user_name)
			do update set profile_pic = coalesce(excluded.profile_pic, users.profile_pic)
			returning id`
	err := s.db.QueryRow(ctx, sql, roomID, name, profilePic, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrUserBadRoom
		}
		return 0, err
	}

	s.logger.Debugf("Upserted user (%s) with id %d", name, id)

	return id, nil
}

// CreateMessage creates new room-wide message in database and returns its id
func (s *Store) CreateMessage(ctx context.Context, roomID, authorID int64, text string) (int64, error) {
	s.logger.Debugf("Creating message from user (id: %d) in room (id: %d)", authorID, roomID)

	var id int64
	sql := "insert into messages (room_id, user_id, message, sent_at) values ($1, $2, $3, $4) returning id"
	err := s.db.QueryRow(ctx, sql, roomID, authorID, text, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			switch pgErr.ConstraintName {
			case "messages_room_id_fkey":
				return 0, ErrMessageBadRoom
			case "messages_user_id_fkey":
				return 0, ErrMessageBadAuthor
			}
		}
		return 0, err
	}

	return id, nil
}

// MessagesByRoomID returns all room messages with their authors joined in,
// sorted by send time (from earliest to latest)
func (s *Store) MessagesByRoomID(ctx context.Context, roomID int64) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for room (id: %d)", roomID)

	// check if room exists
	var i int8
	sql := "select 1 from rooms where id = $1"
	err := s.db.QueryRow(ctx, sql, roomID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotExist
		}
		return nil, err
	}

	sql = `select messages.id,
				  messages.room_id,
				  messages.user_id,
				  users.user_name,
				  users.profile_pic,
				  messages.message,
				  messages.sent_at
			 from messages
			 join users
			   on users.id = messages.user_id
			where messages.room_id = $1
			order by messages.sent_at asc`

	rows, err := s.db.Query(ctx, sql, roomID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var pic pgtype.Text
		err = rows.Scan(&m.ID, &m.RoomID, &m.AuthorID, &m.AuthorName, &pic, &m.Text, &m.SentAt)
		if err != nil {
			return nil, err
		}
		if pic.Status == pgtype.Present {
			m.AuthorPic = pic.String
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// Participants reduces room messages to one entry per distinct author,
// ordered by each author's earliest message
func (s *Store) Participants(ctx context.Context, roomID int64) ([]Participant, error) {
	s.logger.Debugf("Retrieving participants for room (id: %d)", roomID)

	sql := `select users.id,
				   users.user_name,
				   users.profile_pic,
				   min(messages.sent_at) as first_sent_at
			  from messages
			  join users
				on users.id = messages.user_id
			 where messages.room_id = $1
			 group by users.id, users.user_name, users.profile_pic
			 order by first_sent_at asc`

	rows, err := s.db.Query(ctx, sql, roomID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		var pic pgtype.Text
		err = rows.Scan(&p.UserID, &p.UserName, &pic, &p.FirstSentAt)
		if err != nil {
			return nil, err
		}
		if pic.Status == pgtype.Present {
			p.ProfilePic = pic.String
		}
		participants = append(participants, p)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d participants", len(participants))

	return participants, nil
}

// CreatePersonalMessage creates new private message between two room members and returns its id.
// The recipient must belong to the same room as the sender.
func (s *Store) CreatePersonalMessage(ctx context.Context, roomID, fromID, toID int64, text string) (int64, error) {
	s.logger.Debugf("Creating personal message from user (id: %d) to user (id: %d) in room (id: %d)", fromID, toID, roomID)

	var peerRoom int64
	err := s.db.QueryRow(ctx, "select room_id from users where id = $1", toID).Scan(&peerRoom)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPersonalBadPeer
		}
		return 0, err
	}
	if peerRoom != roomID {
		return 0, ErrPersonalWrongRoom
	}

	var id int64
	sql := "insert into personal_messages (room_id, from_id, to_id, message, sent_at) values ($1, $2, $3, $4, $5) returning id"
	err = s.db.QueryRow(ctx, sql, roomID, fromID, toID, text, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			switch pgErr.ConstraintName {
			case "personal_messages_room_id_fkey":
				return 0, ErrMessageBadRoom
			case "personal_messages_from_id_fkey":
				return 0, ErrMessageBadAuthor
			case "personal_messages_to_id_fkey":
				return 0, ErrPersonalBadPeer
			}
		}
		return 0, err
	}

	return id, nil
}

// PersonalThread returns the two-party thread between userA and userB within a room,
// sorted by send time. The pair is unordered: swapping userA and userB yields the same rows.
func (s *Store) PersonalThread(ctx context.Context, roomID, userA, userB int64) ([]PersonalMessage, error) {
	s.logger.Debugf("Retrieving personal thread between users (%d, %d) in room (id: %d)", userA, userB, roomID)

	sql := `select id, room_id, from_id, to_id, message, sent_at
			  from personal_messages
			 where room_id = $1
			   and ((from_id = $2 and to_id = $3) or (from_id = $3 and to_id = $2))
			 order by sent_at asc`

	rows, err := s.db.Query(ctx, sql, roomID, userA, userB)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var messages []PersonalMessage
	for rows.Next() {
		var m PersonalMessage
		err = rows.Scan(&m.ID, &m.RoomID, &m.FromID, &m.ToID, &m.Text, &m.SentAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d personal messages", len(messages))

	return messages, nil
}
