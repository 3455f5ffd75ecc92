package registry

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSuffixLength 与 9 位 base36 随机串对应，约 46 bit 熵。
const DefaultSuffixLength = 9

// IDGenerator 生成 file:<毫秒时间戳>_<随机串> 形式的 ID，按字典序大致对应创建顺序。
type IDGenerator struct {
	SuffixLength int
	Now          func() time.Time
}

// Next 返回一个新的记录 ID。
func (g IDGenerator) Next() (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	length := g.SuffixLength
	if length <= 0 {
		length = DefaultSuffixLength
	}

	token, err := randomToken(length)
	if err != nil {
		return "", err
	}
	return KeyPrefix + strconv.FormatInt(now().UnixMilli(), 10) + "_" + token, nil
}

func randomToken(length int) (string, error) {
	var b strings.Builder
	for b.Len() < length {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate random token: %w", err)
		}
		b.WriteString(new(big.Int).SetBytes(u[:]).Text(36))
	}
	return b.String()[:length], nil
}
