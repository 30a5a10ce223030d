package repository

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
)

// Store はアプリケーションが使用するリポジトリ一式。
type Store struct {
	Matches  MatchRepository
	Users    UserRepository
	Sessions SessionRepository
	Waitlist WaitlistRepository
	Chat     ChatMessageRepository
}

// NewMemoryStore はインメモリ実装のStoreを生成する。
func NewMemoryStore() *Store {
	return &Store{
		Matches:  NewMemoryMatchRepo(),
		Users:    NewMemoryUserRepo(),
		Sessions: NewMemorySessionRepo(),
		Waitlist: NewMemoryWaitlistRepo(),
		Chat:     NewMemoryChatMessageRepo(),
	}
}

// NewPostgresStore はPostgreSQL実装のStoreを生成する。
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Matches:  NewPostgresMatchRepo(db),
		Users:    NewPostgresUserRepo(db),
		Sessions: NewPostgresSessionRepo(db),
		Waitlist: NewPostgresWaitlistRepo(db),
		Chat:     NewPostgresChatMessageRepo(db),
	}
}

// MemoryWaitlistRepo はプロセス内メモリにウェイトリストを保持するリポジトリ。
type MemoryWaitlistRepo struct {
	mu      sync.Mutex
	entries []*model.WaitlistEntry
	emails  map[string]struct{}
	nextID  int64
	now     func() time.Time
}

// NewMemoryWaitlistRepo はMemoryWaitlistRepoを生成する。
func NewMemoryWaitlistRepo() *MemoryWaitlistRepo {
	return &MemoryWaitlistRepo{
		emails: make(map[string]struct{}),
		now:    time.Now,
	}
}

// ExistsByEmail はメールアドレスが登録済みかを返す。
func (r *MemoryWaitlistRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.emails[strings.ToLower(email)]
	return ok, nil
}

// Create はエントリを作成する。重複時はErrDuplicateEmailを返す。
func (r *MemoryWaitlistRepo) Create(_ context.Context, entry *model.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(entry.Email)
	if _, ok := r.emails[key]; ok {
		return ErrDuplicateEmail
	}
	r.nextID++
	entry.ID = r.nextID
	entry.CreatedAt = r.now()

	stored := *entry
	r.entries = append(r.entries, &stored)
	r.emails[key] = struct{}{}
	return nil
}

// List は全エントリのコピーを登録順で返す。
func (r *MemoryWaitlistRepo) List(_ context.Context) ([]*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*model.WaitlistEntry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// MemoryChatMessageRepo はプロセス内メモリに会話ログを保持するリポジトリ。
type MemoryChatMessageRepo struct {
	mu       sync.Mutex
	messages []*model.ChatMessage
	nextID   int64
	now      func() time.Time
}

// NewMemoryChatMessageRepo はMemoryChatMessageRepoを生成する。
func NewMemoryChatMessageRepo() *MemoryChatMessageRepo {
	return &MemoryChatMessageRepo{now: time.Now}
}

// Create はメッセージを保存する。
func (r *MemoryChatMessageRepo) Create(_ context.Context, msg *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	msg.ID = r.nextID
	msg.CreatedAt = r.now()

	stored := *msg
	r.messages = append(r.messages, &stored)
	return nil
}

// ListByConversation は会話の直近limit件を古い順に返す。
func (r *MemoryChatMessageRepo) ListByConversation(_ context.Context, conversationID string, limit int) ([]*model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*model.ChatMessage
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			cp := *m
			matched = append(matched, &cp)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// DeleteOlderThan はcutoffより前に作成されたメッセージを削除する。
func (r *MemoryChatMessageRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.messages[:0]
	var n int64
	for _, m := range r.messages {
		if m.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return n, nil
}

// compile-time interface check
var (
	_ WaitlistRepository    = (*MemoryWaitlistRepo)(nil)
	_ ChatMessageRepository = (*MemoryChatMessageRepo)(nil)
)
