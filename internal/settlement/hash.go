package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type hashParticipant struct {
	UserID      int64 `json:"u"`
	JoinedAt    int64 `json:"j"`
	StakeCents  int64 `json:"s"`
	Completions int   `json:"c"`
}

type hashInput struct {
	Outcome      string            `json:"o"`
	StakeType    string            `json:"t"`
	Currency     string            `json:"cur"`
	Participants []hashParticipant `json:"p"`
	ChallengeID  int64             `json:"id"`
	Target       int               `json:"tgt"`
}

// InputHash 结算输入的内容摘要。只覆盖挑战与参与者数据，不含费率等运行配置
func InputHash(in Input) string {
	h := hashInput{
		ChallengeID:  in.ChallengeID,
		Outcome:      string(in.Outcome),
		StakeType:    string(in.StakeType),
		Currency:     in.Currency,
		Target:       in.Target,
		Participants: make([]hashParticipant, 0, len(in.Participants)),
	}
	for _, p := range in.Participants {
		h.Participants = append(h.Participants, hashParticipant{
			UserID:      p.UserID,
			JoinedAt:    p.JoinedAt.UTC().UnixMicro(),
			StakeCents:  p.StakeCents,
			Completions: p.Completions,
		})
	}
	sort.Slice(h.Participants, func(i, j int) bool {
		return h.Participants[i].UserID < h.Participants[j].UserID
	})

	// 结构体字段顺序固定，json 编码结果确定
	raw, _ := json.Marshal(h)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
