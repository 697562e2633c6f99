// Package codegen produces ticket codes and renders them as QR images.
package codegen

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"qrticket/utils"

	"github.com/bwmarrin/snowflake"
)

const (
	// CodePrefix starts every ticket code.
	CodePrefix = "TKT"

	// SuffixLength random [A-Z0-9] characters follow the time component.
	SuffixLength = 10
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
	nodeErr  error
)

// idNode returns the process-wide snowflake node. Snowflake IDs carry a
// millisecond timestamp and a per-node sequence, so they only ever increase
// within one process.
func idNode() (*snowflake.Node, error) {
	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(rand.Int64N(1 << snowflake.NodeBits))
	})
	return node, nodeErr
}

// NewTicketCode returns an opaque code of the form TKT-<time>-<suffix>.
func NewTicketCode() (string, error) {
	n, err := idNode()
	if err != nil {
		return "", fmt.Errorf("snowflake node: %w", err)
	}

	suffix, err := utils.RandomAlphanumeric(SuffixLength)
	if err != nil {
		return "", fmt.Errorf("random suffix: %w", err)
	}

	return fmt.Sprintf("%s-%s-%s", CodePrefix, strings.ToUpper(n.Generate().Base36()), suffix), nil
}

// LooksLikeTicketCode reports whether s has the shape produced by NewTicketCode.
func LooksLikeTicketCode(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != CodePrefix || parts[1] == "" || len(parts[2]) != SuffixLength {
		return false
	}
	for _, r := range parts[1] + parts[2] {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
