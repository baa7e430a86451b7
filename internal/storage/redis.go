package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Схема ключей:
//   users                   — set всех user id
//   user:<id>               — hash (id, username, balance, lastDaily)
//   user:<id>:chars         — list JSON-экземпляров в порядке получения
//   user:<id>:favs          — set id избранных персонажей
//   char:<id>               — hash определения персонажа
//   chars:ids               — set id каталога
//   chars:nextid            — счетчик id каталога
//   code:<code>             — hash redeem-кода
//   code:<code>:used        — set id уже активировавших пользователей
//   recovery:orphans        — list записей recovery sink

// Все условные мутации выполняются серверными Lua-скриптами: предикат и
// запись проходят как одна неделимая операция, read-then-write гонки на
// уровне одного документа исключены.
var (
	// KEYS[1]=user:<id>:chars KEYS[2]=user:<id> KEYS[3]=users
	// ARGV[1]=instance JSON ARGV[2]=user id ARGV[3]=cap (0 = без лимита)
	pushCharacterScript = redis.NewScript(`
if tonumber(ARGV[3]) > 0 and redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('HSETNX', KEYS[2], 'id', ARGV[2])
redis.call('HSETNX', KEYS[2], 'balance', 0)
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

	// KEYS[1]=user:<id> ARGV[1]=amount
	debitScript = redis.NewScript(`
local bal = tonumber(redis.call('HGET', KEYS[1], 'balance') or '0')
local amt = tonumber(ARGV[1])
if bal < amt then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'balance', -amt)
return 1
`)

	// KEYS[1]=user:<id> KEYS[2]=users
	// ARGV[1]=now unix ARGV[2]=cooldown sec ARGV[3]=reward ARGV[4]=user id
	// Возвращает 0 при успехе, иначе сколько секунд осталось ждать.
	dailyScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cd = tonumber(ARGV[2])
local last = tonumber(redis.call('HGET', KEYS[1], 'lastDaily') or '0')
local left = last + cd - now
if left > 0 then
  return left
end
redis.call('HSET', KEYS[1], 'lastDaily', now)
redis.call('HSETNX', KEYS[1], 'id', ARGV[4])
redis.call('HINCRBY', KEYS[1], 'balance', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
return 0
`)

	// KEYS[1]=code:<code> ARGV[1..]=field value pairs
	createCodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

	// KEYS[1]=code:<code> KEYS[2]=code:<code>:used ARGV[1]=user id
	// Все предикаты валидности и запись в used-set — одна неделимая операция.
	consumeCodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'active') ~= '1' then
  return 0
end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  return 0
end
local max = tonumber(redis.call('HGET', KEYS[1], 'maxUses') or '0')
local used = redis.call('SCARD', KEYS[2])
if used >= max then
  redis.call('HSET', KEYS[1], 'active', '0')
  return 0
end
redis.call('SADD', KEYS[2], ARGV[1])
if used + 1 >= max then
  redis.call('HSET', KEYS[1], 'active', '0')
end
return 1
`)

	// KEYS[1]=code:<code> KEYS[2]=code:<code>:used ARGV[1]=user id
	// Компенсация неудавшейся выдачи награды: слот возвращается пользователю.
	unconsumeCodeScript = redis.NewScript(`
if redis.call('SREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
local max = tonumber(redis.call('HGET', KEYS[1], 'maxUses') or '0')
if redis.call('SCARD', KEYS[2]) < max then
  redis.call('HSET', KEYS[1], 'active', '1')
end
return 1
`)
)

// Redis реализует Store поверх go-redis.
type Redis struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(addr, password string, db int, l *logger.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	l.Info("Redis connected successfully")
	return &Redis{rdb: rdb, log: l}, nil
}

// Close закрывает соединение с Redis.
func (s *Redis) Close() error {
	return s.rdb.Close()
}

func userKey(id int64) string      { return fmt.Sprintf("user:%d", id) }
func userCharsKey(id int64) string { return fmt.Sprintf("user:%d:chars", id) }
func userFavsKey(id int64) string  { return fmt.Sprintf("user:%d:favs", id) }
func charKey(id int64) string      { return fmt.Sprintf("char:%d", id) }
func codeKey(code string) string   { return fmt.Sprintf("code:%s", code) }
func codeUsedKey(code string) string {
	return fmt.Sprintf("code:%s:used", code)
}

const (
	usersKey      = "users"
	charIDsKey    = "chars:ids"
	charNextIDKey = "chars:nextid"
	recoveryKey   = "recovery:orphans"
)

// EnsureUser лениво создает документ пользователя (upsert) и обновляет username.
func (s *Redis) EnsureUser(ctx context.Context, id int64, username string) error {
	pipe := s.rdb.TxPipeline()
	key := userKey(id)
	pipe.HSetNX(ctx, key, "id", id)
	pipe.HSetNX(ctx, key, "balance", 0)
	if username != "" {
		pipe.HSet(ctx, key, "username", username)
	}
	pipe.SAdd(ctx, usersKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// GetUser читает документ пользователя целиком.
func (s *Redis) GetUser(ctx context.Context, id int64) (*models.UserRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	user := &models.UserRecord{ID: id, Username: fields["username"]}
	user.Balance, _ = strconv.ParseInt(fields["balance"], 10, 64)
	if raw := fields["lastDaily"]; raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			user.LastDaily = time.Unix(unix, 0)
		}
	}

	rawChars, err := s.rdb.LRange(ctx, userCharsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range rawChars {
		var inst models.CharacterInstance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			s.log.Error("corrupt character instance, skipping",
				zap.Int64("user", id), zap.String("raw", raw))
			continue
		}
		user.Characters = append(user.Characters, inst)
	}

	rawFavs, err := s.rdb.SMembers(ctx, userFavsKey(id)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range rawFavs {
		if favID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			user.Favorites = append(user.Favorites, favID)
		}
	}
	sort.Slice(user.Favorites, func(i, j int) bool { return user.Favorites[i] < user.Favorites[j] })

	return user, nil
}

// AddBalance безусловно изменяет баланс (минт, кредит, компенсация).
// Документ создается при отсутствии.
func (s *Redis) AddBalance(ctx context.Context, id int64, delta int64) error {
	pipe := s.rdb.TxPipeline()
	key := userKey(id)
	pipe.HSetNX(ctx, key, "id", id)
	pipe.HIncrBy(ctx, key, "balance", delta)
	pipe.SAdd(ctx, usersKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// DebitIfEnough атомарно списывает amount, только если balance >= amount.
// Так недостаток средств детектируется без read-then-write гонки.
func (s *Redis) DebitIfEnough(ctx context.Context, id int64, amount int64) (bool, error) {
	ok, err := debitScript.Run(ctx, s.rdb, []string{userKey(id)}, amount).Int()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

// PullCharacter атомарно убирает первый экземпляр с данным characterId из
// массива пользователя и возвращает его. ErrNotFound — экземпляра нет;
// ErrNoEffect — экземпляр был при чтении, но исчез к моменту удаления
// (LREM не нашел значение), ничего не изменено.
func (s *Redis) PullCharacter(ctx context.Context, id, characterID int64) (*models.CharacterInstance, error) {
	key := userCharsKey(id)
	rawChars, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	for _, raw := range rawChars {
		var inst models.CharacterInstance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			continue
		}
		if inst.CharacterID != characterID {
			continue
		}
		removed, err := s.rdb.LRem(ctx, key, 1, raw).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			return nil, ErrNoEffect
		}
		return &inst, nil
	}

	return nil, ErrNotFound
}

// PushCharacter атомарно добавляет экземпляр в массив пользователя,
// создавая документ при отсутствии. При переполнении инвентаря — ErrCapReached.
func (s *Redis) PushCharacter(ctx context.Context, id int64, inst models.CharacterInstance, cap int) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	ok, err := pushCharacterScript.Run(ctx, s.rdb,
		[]string{userCharsKey(id), userKey(id), usersKey},
		string(raw), id, cap).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrCapReached
	}
	return nil
}

// ToggleFavorite добавляет или убирает персонажа из избранного.
// Возвращает true, если персонаж теперь в избранном.
func (s *Redis) ToggleFavorite(ctx context.Context, id, characterID int64) (bool, error) {
	added, err := s.rdb.SAdd(ctx, userFavsKey(id), characterID).Result()
	if err != nil {
		return false, err
	}
	if added == 1 {
		return true, nil
	}
	if err := s.rdb.SRem(ctx, userFavsKey(id), characterID).Err(); err != nil {
		return true, err
	}
	return false, nil
}

// ClaimDaily атомарно выдает ежедневный бонус, если кулдаун прошел.
// Возвращает 0 при успехе, иначе оставшееся время ожидания.
func (s *Redis) ClaimDaily(ctx context.Context, id int64, cooldown time.Duration, reward int64) (time.Duration, error) {
	left, err := dailyScript.Run(ctx, s.rdb,
		[]string{userKey(id), usersKey},
		time.Now().Unix(), int64(cooldown.Seconds()), reward, id).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(left) * time.Second, nil
}

// TopBalances возвращает n самых богатых пользователей.
func (s *Redis) TopBalances(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	ids, err := s.rdb.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(ids))
	for _, rawID := range ids {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			continue
		}
		fields, err := s.rdb.HMGet(ctx, userKey(id), "balance", "username").Result()
		if err != nil {
			continue
		}
		entry := models.LeaderboardEntry{UserID: id}
		if raw, ok := fields[0].(string); ok {
			entry.Balance, _ = strconv.ParseInt(raw, 10, 64)
		}
		if raw, ok := fields[1].(string); ok {
			entry.Username = raw
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Balance > entries[j].Balance })
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// SaveCharacter сохраняет определение персонажа в каталог.
func (s *Redis) SaveCharacter(ctx context.Context, def *models.CharacterDefinition) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, charKey(def.ID), map[string]interface{}{
		"id":     def.ID,
		"name":   def.Name,
		"anime":  def.Anime,
		"rarity": int(def.Rarity),
		"image":  def.ImageRef,
	})
	pipe.SAdd(ctx, charIDsKey, def.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetCharacter читает определение персонажа из каталога.
func (s *Redis) GetCharacter(ctx context.Context, id int64) (*models.CharacterDefinition, error) {
	fields, err := s.rdb.HGetAll(ctx, charKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	def := &models.CharacterDefinition{
		ID:       id,
		Name:     fields["name"],
		Anime:    fields["anime"],
		ImageRef: fields["image"],
	}
	if tier, err := strconv.Atoi(fields["rarity"]); err == nil {
		def.Rarity = models.Rarity(tier)
	}
	return def, nil
}

// RandomCharacter возвращает случайного персонажа каталога.
func (s *Redis) RandomCharacter(ctx context.Context) (*models.CharacterDefinition, error) {
	rawID, err := s.rdb.SRandMember(ctx, charIDsKey).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt catalog id %q", rawID)
	}
	return s.GetCharacter(ctx, id)
}

// NextCharacterID выдает следующий свободный id каталога.
func (s *Redis) NextCharacterID(ctx context.Context) (int64, error) {
	return s.rdb.Incr(ctx, charNextIDKey).Result()
}

// CreateCode сохраняет новый redeem-код. ErrConflict при коллизии.
func (s *Redis) CreateCode(ctx context.Context, code *models.RedeemCode) error {
	active := "0"
	if code.Active {
		active = "1"
	}
	ok, err := createCodeScript.Run(ctx, s.rdb, []string{codeKey(code.Code)},
		"code", code.Code,
		"kind", string(code.Kind),
		"amount", code.Amount,
		"characterId", code.CharacterID,
		"maxUses", code.MaxUses,
		"active", active,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrConflict
	}
	return nil
}

// GetCode читает код вместе с used-set (диагностический путь redeem).
func (s *Redis) GetCode(ctx context.Context, code string) (*models.RedeemCode, error) {
	fields, err := s.rdb.HGetAll(ctx, codeKey(code)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rc := &models.RedeemCode{
		Code:   fields["code"],
		Kind:   models.CodeKind(fields["kind"]),
		Active: fields["active"] == "1",
	}
	rc.Amount, _ = strconv.ParseInt(fields["amount"], 10, 64)
	rc.CharacterID, _ = strconv.ParseInt(fields["characterId"], 10, 64)
	rc.MaxUses, _ = strconv.Atoi(fields["maxUses"])

	rawUsed, err := s.rdb.SMembers(ctx, codeUsedKey(code)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range rawUsed {
		if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rc.UsedBy = append(rc.UsedBy, userID)
		}
	}
	return rc, nil
}

// ConsumeCode — атомарное условное потребление кода: существует, активен,
// пользователь еще не активировал, лимит не исчерпан — и запись пользователя
// в used-set одной неделимой операцией. false без ошибки = предикат не прошел.
func (s *Redis) ConsumeCode(ctx context.Context, code string, userID int64) (bool, error) {
	ok, err := consumeCodeScript.Run(ctx, s.rdb,
		[]string{codeKey(code), codeUsedKey(code)}, userID).Int()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

// UnconsumeCode возвращает пользователю слот кода после неудавшейся выдачи награды.
func (s *Redis) UnconsumeCode(ctx context.Context, code string, userID int64) error {
	ok, err := unconsumeCodeScript.Run(ctx, s.rdb,
		[]string{codeKey(code), codeUsedKey(code)}, userID).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrNoEffect
	}
	return nil
}

// DeactivateCode гасит код (идемпотентно).
func (s *Redis) DeactivateCode(ctx context.Context, code string) error {
	return s.rdb.HSet(ctx, codeKey(code), "active", "0").Err()
}

// AppendRecovery пишет осиротевшего персонажа в recovery sink.
func (s *Redis) AppendRecovery(ctx context.Context, rec *models.RecoveryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, recoveryKey, raw).Err()
}
