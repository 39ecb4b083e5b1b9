package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := NewError(KindNoOverlap, "TSLA", "no shared dates with factor panel")

	assert.True(t, errors.Is(err, ErrNoOverlap))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("whole sample fit: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNoOverlap))
	assert.Equal(t, KindNoOverlap, KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	err := NewError(KindNotFound, "AAPL", "no return history")
	assert.Equal(t, "AAPL: no return history", err.Error())

	bare := &Error{Kind: KindInvalidWindow}
	assert.Equal(t, "invalid_window", bare.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))
	assert.Equal(t, KindSingularDesign, KindOf(ErrSingularDesign))
}

func TestIsExpected(t *testing.T) {
	assert.True(t, IsExpected(ErrNotFound))
	assert.True(t, IsExpected(NewError(KindInvalidWindow, "", "window must be positive")))
	assert.False(t, IsExpected(errors.New("boom")))
	assert.False(t, IsExpected(nil))
}

func TestFactorPanel_Column(t *testing.T) {
	panel := FactorPanel{
		Factors: []string{"Mkt-RF", "SMB"},
		Values:  [][]float64{{0.01, 0.02}, {0.03, 0.04}},
	}

	assert.Equal(t, []float64{0.02, 0.04}, panel.Column("SMB"))
	assert.Nil(t, panel.Column("HML"))
}
