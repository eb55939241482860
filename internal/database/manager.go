package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	dbconfig "roomwire/pkg/database"
	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

const settingCommunicationsPaused = "communications_paused"

// Manager implements interfaces.DatabaseManager on SQLite. Reads go straight
// to the pool; writes are serialized through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database at config.DatabasePath and starts the writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbconfig.DSN(config.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies the embedded schema migrations.
func (m *Manager) Migrate() error {
	mm := dbconfig.NewMigrationManager(m.db)
	if err := mm.ApplyMigrations(); err != nil {
		return err
	}
	return mm.ValidateSchema()
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			// Only lock contention is worth retrying; constraint failures
			// would fail again.
			if err != nil && isTransient(err) {
				log.Printf("Database write failed, retrying in %s: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateUser inserts a user. ID, role and creation time are filled in when
// empty.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, username, avatar_url, role, is_active, total_active_time, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, user.ID, user.Username, user.AvatarURL, user.Role, user.IsActive, user.TotalActiveTime, user.CreatedAt)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("%w: user %s", ErrDuplicate, user.ID)
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves a user by ID
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, username, avatar_url, role, is_active, total_active_time, last_seen, created_at
		FROM users
		WHERE id = ?
	`, userID)

	var user types.User
	var avatarURL sql.NullString
	var lastSeen sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Username,
		&avatarURL,
		&user.Role,
		&user.IsActive,
		&user.TotalActiveTime,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}

	return &user, nil
}

// TouchLastSeen sets the user's last_seen to now.
func (m *Manager) TouchLastSeen(ctx context.Context, userID string) error {
	return m.updateUser(ctx, userID, `UPDATE users SET last_seen = ? WHERE id = ?`, time.Now().UTC(), userID)
}

// AddActiveTime adds seconds to the user's total_active_time and refreshes
// last_seen. The total is only ever incremented.
func (m *Manager) AddActiveTime(ctx context.Context, userID string, seconds int64) error {
	if seconds <= 0 {
		return nil
	}
	return m.updateUser(ctx, userID,
		`UPDATE users SET total_active_time = total_active_time + ?, last_seen = ? WHERE id = ?`,
		seconds, time.Now().UTC(), userID)
}

// SetUserActive enables or disables a user account.
func (m *Manager) SetUserActive(ctx context.Context, userID string, active bool) error {
	return m.updateUser(ctx, userID, `UPDATE users SET is_active = ? WHERE id = ?`, active, userID)
}

func (m *Manager) updateUser(ctx context.Context, userID, query string, args ...interface{}) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, userID)
		}
		return nil
	})
}

// CreateRoom inserts a room.
func (m *Manager) CreateRoom(ctx context.Context, room *types.Room) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO rooms (id, name, is_private, created_at) VALUES (?, ?, ?, ?)`,
			room.ID, room.Name, room.IsPrivate, room.CreatedAt)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("%w: room %s", ErrDuplicate, room.ID)
			}
			return fmt.Errorf("failed to insert room: %w", err)
		}
		return nil
	})
}

// AddRoomMember grants userID membership of roomID. Adding an existing
// member is a no-op.
func (m *Manager) AddRoomMember(ctx context.Context, roomID, userID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`,
			roomID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to add room member: %w", err)
		}
		return nil
	})
}

// RemoveRoomMember revokes membership. Removing a non-member is a no-op.
func (m *Manager) RemoveRoomMember(ctx context.Context, roomID, userID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`,
			roomID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove room member: %w", err)
		}
		return nil
	})
}

// RoomAccessible reports whether userID may join roomID: public rooms admit
// everyone, private rooms admit members only.
func (m *Manager) RoomAccessible(ctx context.Context, roomID, userID string) (bool, error) {
	var isPrivate bool
	err := m.db.QueryRowContext(ctx, `SELECT is_private FROM rooms WHERE id = ?`, roomID).Scan(&isPrivate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, interfaces.ErrRoomNotFound
		}
		return false, fmt.Errorf("failed to query room: %w", err)
	}
	if !isPrivate {
		return true, nil
	}

	var count int
	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query membership: %w", err)
	}
	return count > 0, nil
}

// PersistMessage stores an accepted chat message and returns it with its
// assigned id and creation time.
func (m *Manager) PersistMessage(ctx context.Context, roomID, userID, content, messageType string, encrypted bool) (*types.StoredMessage, error) {
	msg := &types.StoredMessage{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		UserID:      userID,
		Content:     content,
		MessageType: messageType,
		IsEncrypted: encrypted,
		CreatedAt:   time.Now().UTC(),
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, room_id, user_id, content, message_type, is_encrypted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.RoomID, msg.UserID, msg.Content, msg.MessageType, msg.IsEncrypted, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessage retrieves a message by ID
func (m *Manager) GetMessage(ctx context.Context, messageID string) (*types.StoredMessage, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, room_id, user_id, content, message_type, is_encrypted, created_at, edited_at
		FROM messages
		WHERE id = ?
	`, messageID)

	var msg types.StoredMessage
	var editedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &msg.MessageType, &msg.IsEncrypted, &msg.CreatedAt, &editedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	return &msg, nil
}

// UpdateMessageContent replaces a message's content and stamps edited_at.
func (m *Manager) UpdateMessageContent(ctx context.Context, messageID, content string) (*types.StoredMessage, error) {
	editedAt := time.Now().UTC()
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE messages SET content = ?, edited_at = ? WHERE id = ?`,
			content, editedAt, messageID)
		if err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrMessageNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.GetMessage(ctx, messageID)
}

// DeleteMessage removes a message for everyone.
func (m *Manager) DeleteMessage(ctx context.Context, messageID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
		if err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrMessageNotFound
		}
		return nil
	})
}

// HideMessage removes a message from one user's view only.
func (m *Manager) HideMessage(ctx context.Context, messageID, userID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_hides (message_id, user_id, hidden_at) VALUES (?, ?, ?)`,
			messageID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to hide message: %w", err)
		}
		return nil
	})
}

// MarkMessageRead records a read receipt. Repeated reads keep the first time.
func (m *Manager) MarkMessageRead(ctx context.Context, messageID, userID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
			messageID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to record read receipt: %w", err)
		}
		return nil
	})
}

// IsCommunicationsPaused reads the global pause switch. A missing setting
// means communications are running.
func (m *Manager) IsCommunicationsPaused(ctx context.Context) (bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE name = ?`,
		settingCommunicationsPaused).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query setting: %w", err)
	}
	return value == "true", nil
}

// SetCommunicationsPaused flips the global pause switch.
func (m *Manager) SetCommunicationsPaused(ctx context.Context, paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO system_settings (name, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, settingCommunicationsPaused, value, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to update setting: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
