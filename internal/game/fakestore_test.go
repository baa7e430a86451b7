package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"
)

// fakeStore — in-memory реализация storage.Store с той же атомарной
// семантикой (все операции под одним мьютексом). Хуки fail* позволяют
// провалить конкретные шаги и проверить компенсации.
type fakeStore struct {
	mu sync.Mutex

	balances map[int64]int64
	names    map[int64]string
	daily    map[int64]time.Time
	chars    map[int64][]models.CharacterInstance
	exists   map[int64]bool
	favs     map[int64]map[int64]bool

	catalog map[int64]models.CharacterDefinition
	nextID  int64

	codes    map[string]*models.RedeemCode
	recovery []models.RecoveryRecord

	// Сколько следующих push/credit данному пользователю провалить.
	failPush   map[int64]int
	failCredit map[int64]int
	// Следующий pull вернет ErrNoEffect (гонка между чтением и удалением).
	pullNoEffect bool
	failRecovery bool

	now func() time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		balances:   make(map[int64]int64),
		names:      make(map[int64]string),
		daily:      make(map[int64]time.Time),
		chars:      make(map[int64][]models.CharacterInstance),
		exists:     make(map[int64]bool),
		favs:       make(map[int64]map[int64]bool),
		catalog:    make(map[int64]models.CharacterDefinition),
		codes:      make(map[string]*models.RedeemCode),
		failPush:   make(map[int64]int),
		failCredit: make(map[int64]int),
		now:        time.Now,
	}
}

// seedUser заводит пользователя с балансом и персонажами по id каталога.
func (f *fakeStore) seedUser(id int64, balance int64, charIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists[id] = true
	f.balances[id] = balance
	for _, cid := range charIDs {
		def, ok := f.catalog[cid]
		if !ok {
			def = models.CharacterDefinition{ID: cid, Name: fmt.Sprintf("char-%d", cid), Anime: "test", Rarity: models.RarityCommon}
		}
		f.chars[id] = append(f.chars[id], def.Instance())
	}
}

func (f *fakeStore) seedCharacter(def models.CharacterDefinition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog[def.ID] = def
	if def.ID > f.nextID {
		f.nextID = def.ID
	}
}

// snapshot — копия наблюдаемого состояния пользователя для проверок
// "ничего не изменилось".
type userSnapshot struct {
	exists  bool
	balance int64
	chars   []models.CharacterInstance
}

func (f *fakeStore) snapshot(id int64) userSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := userSnapshot{exists: f.exists[id], balance: f.balances[id]}
	s.chars = append(s.chars, f.chars[id]...)
	return s
}

func (f *fakeStore) countCharacter(id, characterID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chars[id] {
		if c.CharacterID == characterID {
			n++
		}
	}
	return n
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) EnsureUser(_ context.Context, id int64, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists[id] = true
	if username != "" {
		f.names[id] = username
	}
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (*models.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists[id] {
		return nil, storage.ErrNotFound
	}
	user := &models.UserRecord{
		ID:        id,
		Username:  f.names[id],
		Balance:   f.balances[id],
		LastDaily: f.daily[id],
	}
	user.Characters = append(user.Characters, f.chars[id]...)
	for favID := range f.favs[id] {
		user.Favorites = append(user.Favorites, favID)
	}
	sort.Slice(user.Favorites, func(i, j int) bool { return user.Favorites[i] < user.Favorites[j] })
	return user, nil
}

func (f *fakeStore) AddBalance(_ context.Context, id int64, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCredit[id] > 0 {
		f.failCredit[id]--
		return errors.New("fake credit failure")
	}
	f.exists[id] = true
	f.balances[id] += delta
	return nil
}

func (f *fakeStore) DebitIfEnough(_ context.Context, id int64, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[id] < amount {
		return false, nil
	}
	f.balances[id] -= amount
	return true, nil
}

func (f *fakeStore) PullCharacter(_ context.Context, id, characterID int64) (*models.CharacterInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullNoEffect {
		f.pullNoEffect = false
		return nil, storage.ErrNoEffect
	}
	for i, c := range f.chars[id] {
		if c.CharacterID == characterID {
			inst := c
			f.chars[id] = append(f.chars[id][:i:i], f.chars[id][i+1:]...)
			return &inst, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) PushCharacter(_ context.Context, id int64, inst models.CharacterInstance, cap int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPush[id] > 0 {
		f.failPush[id]--
		return errors.New("fake push failure")
	}
	if cap > 0 && len(f.chars[id]) >= cap {
		return storage.ErrCapReached
	}
	f.exists[id] = true
	f.chars[id] = append(f.chars[id], inst)
	return nil
}

func (f *fakeStore) ToggleFavorite(_ context.Context, id, characterID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.favs[id] == nil {
		f.favs[id] = make(map[int64]bool)
	}
	if f.favs[id][characterID] {
		delete(f.favs[id], characterID)
		return false, nil
	}
	f.favs[id][characterID] = true
	return true, nil
}

func (f *fakeStore) ClaimDaily(_ context.Context, id int64, cooldown time.Duration, reward int64) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if left := cooldown - now.Sub(f.daily[id]); left > 0 {
		return left, nil
	}
	f.exists[id] = true
	f.daily[id] = now
	f.balances[id] += reward
	return 0, nil
}

func (f *fakeStore) TopBalances(_ context.Context, n int) ([]models.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]models.LeaderboardEntry, 0, len(f.balances))
	for id := range f.exists {
		entries = append(entries, models.LeaderboardEntry{UserID: id, Username: f.names[id], Balance: f.balances[id]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Balance > entries[j].Balance })
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (f *fakeStore) SaveCharacter(_ context.Context, def *models.CharacterDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog[def.ID] = *def
	return nil
}

func (f *fakeStore) GetCharacter(_ context.Context, id int64) (*models.CharacterDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.catalog[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &def, nil
}

func (f *fakeStore) RandomCharacter(_ context.Context) (*models.CharacterDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, def := range f.catalog {
		def := def
		return &def, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) NextCharacterID(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) CreateCode(_ context.Context, code *models.RedeemCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.codes[code.Code]; ok {
		return storage.ErrConflict
	}
	cp := *code
	f.codes[code.Code] = &cp
	return nil
}

func (f *fakeStore) GetCode(_ context.Context, code string) (*models.RedeemCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rc
	cp.UsedBy = append([]int64(nil), rc.UsedBy...)
	return &cp, nil
}

func (f *fakeStore) ConsumeCode(_ context.Context, code string, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.codes[code]
	if !ok || !rc.Active {
		return false, nil
	}
	for _, id := range rc.UsedBy {
		if id == userID {
			return false, nil
		}
	}
	if len(rc.UsedBy) >= rc.MaxUses {
		rc.Active = false
		return false, nil
	}
	rc.UsedBy = append(rc.UsedBy, userID)
	if len(rc.UsedBy) >= rc.MaxUses {
		rc.Active = false
	}
	return true, nil
}

func (f *fakeStore) UnconsumeCode(_ context.Context, code string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.codes[code]
	if !ok {
		return storage.ErrNoEffect
	}
	for i, id := range rc.UsedBy {
		if id == userID {
			rc.UsedBy = append(rc.UsedBy[:i], rc.UsedBy[i+1:]...)
			if len(rc.UsedBy) < rc.MaxUses {
				rc.Active = true
			}
			return nil
		}
	}
	return storage.ErrNoEffect
}

func (f *fakeStore) DeactivateCode(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rc, ok := f.codes[code]; ok {
		rc.Active = false
	}
	return nil
}

func (f *fakeStore) AppendRecovery(_ context.Context, rec *models.RecoveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecovery {
		return errors.New("fake recovery sink failure")
	}
	f.recovery = append(f.recovery, *rec)
	return nil
}
