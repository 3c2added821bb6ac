package version

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/DukeRupert/designaudit/internal/domain"
)

// snapshot is the hashed content of a version. Params are maps, which
// encoding/json writes with sorted keys, so insertion order never affects
// the encoding.
type snapshot struct {
	Input domain.Params          `json:"input"`
	Rules []domain.RuleSnapshot  `json:"rules"`
	Log   *domain.CalculationLog `json:"log"`
}

// ContentHash returns the hex BLAKE2b-256 digest of the canonical JSON
// encoding of the input, rule and calculation log snapshots.
func ContentHash(input domain.Params, rules []domain.RuleSnapshot, log *domain.CalculationLog) (string, error) {
	data, err := json.Marshal(snapshot{Input: input, Rules: rules, Log: log})
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
