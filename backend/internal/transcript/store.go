package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInvalidRole is returned when a message role is not user, assistant or system
	ErrInvalidRole = errors.New("invalid message role")
	// ErrEmptyEmbedding is returned when a message is stored with a zero-length embedding
	ErrEmptyEmbedding = errors.New("empty message embedding")
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Schema creates the messages table and the per-message embedding table.
// Applied by cmd/migrate.
const Schema = `
create table if not exists messages (
  id         bigserial primary key,
  chat_id    uuid        not null,
  user_id    uuid        not null,
  role       text        not null check (role in ('user', 'assistant', 'system')),
  content    text        not null,
  created_at timestamptz not null default now()
);
create index if not exists messages_chat_created_idx on messages (chat_id, created_at, id);

create table if not exists message_embeddings (
  id         bigserial primary key,
  message_id bigint      not null references messages (id) on delete cascade,
  embedding  real[]      not null,
  section    smallint,
  created_at timestamptz not null default now()
);
create index if not exists message_embeddings_message_idx on message_embeddings (message_id);
`

// Message is one line of a chat transcript
type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an append-only transcript log in Postgres
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a Store on db
func NewStore(db *pgxpool.Pool) *Store { return &Store{db: db} }

// Connect opens and pings a pool for databaseURL
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema inside one transaction
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply transcript schema: %w", err)
	}
	return tx.Commit(ctx)
}

// Append stores one message and returns it with its id and timestamp
func (s *Store) Append(ctx context.Context, chatID, userID, role, content string) (*Message, error) {
	if !validRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	const q = `
insert into messages (chat_id, user_id, role, content)
values ($1, $2, $3, $4)
returning id, created_at
`
	m := &Message{ChatID: chatID, UserID: userID, Role: role, Content: content}
	if err := s.db.QueryRow(ctx, q, chatID, userID, role, content).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return m, nil
}

// AppendWithEmbedding stores one message together with its embedding in a
// single transaction
func (s *Store) AppendWithEmbedding(ctx context.Context, chatID, userID, role, content string, embedding []float32) (*Message, error) {
	if !validRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if len(embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	const insertMessage = `
insert into messages (chat_id, user_id, role, content)
values ($1, $2, $3, $4)
returning id, created_at
`
	const insertEmbedding = `
insert into message_embeddings (message_id, embedding)
values ($1, $2)
`
	m := &Message{ChatID: chatID, UserID: userID, Role: role, Content: content}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertMessage, chatID, userID, role, content).Scan(&m.ID, &m.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertEmbedding, m.ID, embedding)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message with embedding: %w", err)
	}
	return m, nil
}

// List returns the chat's messages owned by userID in creation order
func (s *Store) List(ctx context.Context, chatID, userID string) ([]Message, error) {
	const q = `
select id, chat_id::text, user_id::text, role, content, created_at
from messages
where chat_id=$1 and user_id=$2
order by created_at asc, id asc
`
	rows, err := s.db.Query(ctx, q, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return out, nil
}

// Render formats messages as "role: content" lines
func Render(messages []Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n")
}

func validRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
