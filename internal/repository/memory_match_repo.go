package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
)

// MemoryMatchRepo はプロセス内メモリに試合とmembershipを保持するリポジトリ。
// DATABASE_URL未設定時とテストで使用する。
// 試合・membership・参加人数は単一のmutexで保護し、AddMemberを不可分にする。
type MemoryMatchRepo struct {
	mu          sync.Mutex
	matches     []*model.Match
	byID        map[int64]*model.Match
	byRef       map[string]int64
	memberships []model.Membership
	members     map[membershipKey]struct{}
	nextID      int64
	now         func() time.Time
}

type membershipKey struct {
	matchID int64
	token   string
}

// NewMemoryMatchRepo はMemoryMatchRepoを生成する。
func NewMemoryMatchRepo() *MemoryMatchRepo {
	return &MemoryMatchRepo{
		byID:    make(map[int64]*model.Match),
		byRef:   make(map[string]int64),
		members: make(map[membershipKey]struct{}),
		now:     time.Now,
	}
}

// FindByID は指定IDの試合のコピーを返す。見つからない場合はnilを返す。
func (r *MemoryMatchRepo) FindByID(_ context.Context, id int64) (*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// List は全試合のコピーを作成順で返す。
func (r *MemoryMatchRepo) List(_ context.Context) ([]*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*model.Match, 0, len(r.matches))
	for _, m := range r.matches {
		cp := *m
		result = append(result, &cp)
	}
	return result, nil
}

// Create は試合を作成し、採番したIDとCreatedAtを設定する。
func (r *MemoryMatchRepo) Create(_ context.Context, match *model.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.insertLocked(match)
	return nil
}

// CreateIfAbsent はExternalRefが未登録の場合のみ試合を作成する。
func (r *MemoryMatchRepo) CreateIfAbsent(_ context.Context, match *model.Match) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRef[match.ExternalRef]; exists {
		return false, nil
	}
	r.insertLocked(match)
	return true, nil
}

func (r *MemoryMatchRepo) insertLocked(match *model.Match) {
	r.nextID++
	match.ID = r.nextID
	match.CreatedAt = r.now()

	stored := *match
	r.matches = append(r.matches, &stored)
	r.byID[stored.ID] = &stored
	if stored.ExternalRef != "" {
		r.byRef[stored.ExternalRef] = stored.ID
	}
}

// HasMember は(matchID, token)のmembershipが存在するかを返す。
func (r *MemoryMatchRepo) HasMember(_ context.Context, matchID int64, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[membershipKey{matchID: matchID, token: token}]
	return ok, nil
}

// AddMember はmembershipの追加と参加人数のインクリメントをロック内で行う。
func (r *MemoryMatchRepo) AddMember(_ context.Context, matchID int64, token string, joinedAt time.Time) (*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	key := membershipKey{matchID: matchID, token: token}
	if _, exists := r.members[key]; exists {
		return nil, ErrAlreadyMember
	}
	if m.IsFull() {
		return nil, ErrMatchFull
	}

	r.members[key] = struct{}{}
	r.memberships = append(r.memberships, model.Membership{
		MatchID:       matchID,
		IdentityToken: token,
		JoinedAt:      joinedAt,
	})
	m.CurrentPlayers++

	cp := *m
	return &cp, nil
}

// ListMembershipsWithMatch は全membershipを参加順で、試合のスナップショットと共に返す。
func (r *MemoryMatchRepo) ListMembershipsWithMatch(_ context.Context) ([]MembershipWithMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]MembershipWithMatch, 0, len(r.memberships))
	for _, ms := range r.memberships {
		m, ok := r.byID[ms.MatchID]
		if !ok {
			continue
		}
		result = append(result, MembershipWithMatch{Membership: ms, Match: *m})
	}
	return result, nil
}

// compile-time interface check
var _ MatchRepository = (*MemoryMatchRepo)(nil)
