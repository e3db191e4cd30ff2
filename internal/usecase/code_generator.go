package usecase

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
)

// A character set that avoids ambiguous characters like O/0, I/1.
// 256 is a multiple of its length, so byte%len carries no modulo bias.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const segmentLen = 3

var codeFormat = regexp.MustCompile(fmt.Sprintf(`^(%s|%s)-[%s]{%d}-[%s]{%d}$`,
	model.CodeClassAdmin.Prefix(), model.CodeClassPromotion.Prefix(),
	codeAlphabet, segmentLen, codeAlphabet, segmentLen,
))

// CodeGenerator produces a fresh code string for a class.
type CodeGenerator func(class model.CodeClass) (string, error)

// GenerateCode creates a secure, random, and human-readable code.
// Format: PREFIX-XXX-YYY
func GenerateCode(class model.CodeClass) (string, error) {
	return generateCode(rand.Reader, class)
}

func generateCode(r io.Reader, class model.CodeClass) (string, error) {
	prefix := class.Prefix()
	if prefix == "" {
		return "", domain.ErrInvalidArgument
	}

	buffer := make([]byte, 2*segmentLen)
	if _, err := io.ReadFull(r, buffer); err != nil {
		return "", err
	}
	for i := range buffer {
		buffer[i] = codeAlphabet[int(buffer[i])%len(codeAlphabet)]
	}

	return prefix + "-" + string(buffer[:segmentLen]) + "-" + string(buffer[segmentLen:]), nil
}

// NormalizeCode trims whitespace and upper-cases user input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidFormat is the structural check run before any store lookup.
func ValidFormat(code string) bool {
	return codeFormat.MatchString(code)
}
