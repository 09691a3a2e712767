package model

import (
	"fmt"
	"strings"
)

// ProofType 打卡证明类型
type ProofType string

const (
	ProofTypeNone  ProofType = "none"
	ProofTypePhoto ProofType = "photo"
	ProofTypeNote  ProofType = "note"
)

const maxNoteLength = 2000

// Proof 打卡证明，仅允许本包内的实现
type Proof interface {
	Type() ProofType
	Validate() error
	isProof()
}

// PhotoProof 图片证明，PayloadRef 指向对象存储中已上传的文件
type PhotoProof struct {
	PayloadRef string
}

func (PhotoProof) Type() ProofType { return ProofTypePhoto }
func (PhotoProof) isProof()        {}

func (p PhotoProof) Validate() error {
	if strings.TrimSpace(p.PayloadRef) == "" {
		return fmt.Errorf("photo proof requires payload_ref")
	}
	return nil
}

// NoteProof 文字证明
type NoteProof struct {
	Text string
}

func (NoteProof) Type() ProofType { return ProofTypeNote }
func (NoteProof) isProof()        {}

func (p NoteProof) Validate() error {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return fmt.Errorf("note proof requires text")
	}
	if len(text) > maxNoteLength {
		return fmt.Errorf("note proof exceeds %d bytes", maxNoteLength)
	}
	return nil
}

// NewProof 由请求中的字段构造证明，type 为空表示无证明
func NewProof(proofType, payloadRef, text string) (Proof, error) {
	switch ProofType(proofType) {
	case "", ProofTypeNone:
		return nil, nil
	case ProofTypePhoto:
		return PhotoProof{PayloadRef: payloadRef}, nil
	case ProofTypeNote:
		return NoteProof{Text: text}, nil
	default:
		return nil, fmt.Errorf("unknown proof type %q", proofType)
	}
}

// ApplyProof 将证明写入打卡记录的列
func ApplyProof(log *CheckInLog, proof Proof) {
	log.ProofType = ProofTypeNone
	log.ProofPayloadRef = ""
	log.ProofNote = ""

	switch p := proof.(type) {
	case nil:
	case PhotoProof:
		log.ProofType = ProofTypePhoto
		log.ProofPayloadRef = p.PayloadRef
	case NoteProof:
		log.ProofType = ProofTypeNote
		log.ProofNote = strings.TrimSpace(p.Text)
	}
}
