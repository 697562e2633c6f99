package codegen

import (
	"image"
	"strings"
	"sync"
	"testing"

	"qrticket/internal/status"
	"qrticket/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicketCode_Format(t *testing.T) {
	code, err := NewTicketCode()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, CodePrefix+"-"))
	assert.True(t, LooksLikeTicketCode(code), code)
}

func TestNewTicketCode_UniqueAcrossBatches(t *testing.T) {
	seen := make(map[string]struct{})
	for batch := 0; batch < 4; batch++ {
		for i := 0; i < 500; i++ {
			code, err := NewTicketCode()
			require.NoError(t, err)
			_, dup := seen[code]
			require.False(t, dup, "duplicate code %s", code)
			seen[code] = struct{}{}
		}
	}
	assert.Len(t, seen, 2000)
}

func TestNewTicketCode_UniqueUnderConcurrency(t *testing.T) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]struct{})
	)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				code, err := NewTicketCode()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[code] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}

func TestLooksLikeTicketCode(t *testing.T) {
	assert.False(t, LooksLikeTicketCode(""))
	assert.False(t, LooksLikeTicketCode("hello world"))
	assert.False(t, LooksLikeTicketCode("TKT-ABC-short"))
	assert.False(t, LooksLikeTicketCode("XYZ-ABC-0123456789"))
	assert.True(t, LooksLikeTicketCode("TKT-ABC-0123456789"))
}

func TestRenderCode_Tiers(t *testing.T) {
	for size, px := range map[models.QRSize]int{
		models.QRSizeSmall:  128,
		models.QRSizeMedium: 200,
		models.QRSizeLarge:  256,
	} {
		img, err := RenderCode("TKT-TIER-0123456789", size)
		require.NoError(t, err)
		assert.Equal(t, px, img.Bounds().Dx(), size)
		assert.Equal(t, px, img.Bounds().Dy(), size)
	}
}

func TestRenderCode_TooLong(t *testing.T) {
	_, err := RenderCode(strings.Repeat("X", 8000), models.QRSizeSmall)
	assert.ErrorIs(t, err, status.ErrEncoding)
}

func TestRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := NewTicketCode()
		require.NoError(t, err)

		img, err := RenderCode(code, models.QRSizeMedium)
		require.NoError(t, err)

		decoded, err := Decode(img)
		require.NoError(t, err)
		assert.Equal(t, code, decoded)
	}
}

func TestDecode_BlankFrame(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}

	_, err := Decode(blank)
	assert.ErrorIs(t, err, status.ErrNoCode)
}
