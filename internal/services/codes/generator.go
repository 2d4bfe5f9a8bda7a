package codes

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"unicode"

	"github.com/BearBump/ShipTrack/internal/models"
)

const (
	codeSpace   = 1_000_000_000
	MaxAttempts = 5
)

type Rand interface {
	Intn(n int) int
}

type Checker interface {
	ShipmentCodeExists(ctx context.Context, code string) (bool, error)
}

type Code struct {
	Raw       string `json:"code"`
	Formatted string `json:"codeFormatted"`
}

// Generator выдаёт 9-значные коды, которых нет среди сохранённых отправлений.
// Код не резервируется: окончательную уникальность гарантирует UNIQUE в БД.
type Generator struct {
	repo     Checker
	r        Rand
	attempts int
}

// globalRand использует общий источник math/rand, он безопасен для конкурентных запросов.
type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

func New(repo Checker, r Rand) *Generator {
	if r == nil {
		r = globalRand{}
	}
	return &Generator{repo: repo, r: r, attempts: MaxAttempts}
}

func (g *Generator) Generate(ctx context.Context) (Code, error) {
	for i := 0; i < g.attempts; i++ {
		raw := fmt.Sprintf("%09d", g.r.Intn(codeSpace))
		exists, err := g.repo.ShipmentCodeExists(ctx, raw)
		if err != nil {
			return Code{}, err
		}
		if !exists {
			return Code{Raw: raw, Formatted: Format(raw)}, nil
		}
	}
	return Code{}, models.ErrGenerationExhausted
}

// Format группирует цифры как "000 000 000". Нестандартный ввод возвращается как есть.
func Format(raw string) string {
	if len(raw) != 9 {
		return raw
	}
	return raw[0:3] + " " + raw[3:6] + " " + raw[6:9]
}

// Normalize убирает пробельные символы и проверяет, что осталось ровно 9 цифр.
func Normalize(s string) (string, error) {
	code := StripSpaces(s)
	if len(code) != 9 {
		return "", models.NewValidationError("code", "Código deve conter 9 dígitos")
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", models.NewValidationError("code", "Código deve conter 9 dígitos")
		}
	}
	return code, nil
}

func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
