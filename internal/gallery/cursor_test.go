package gallery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionctl/internal/model"
)

func threeImages() []model.ImageRef {
	return []model.ImageRef{
		{Filename: "a.jpg", Filepath: "dataset/train/cat/a.jpg"},
		{Filename: "b.jpg", Filepath: "dataset/train/cat/b.jpg"},
		{Filename: "c.jpg", Filepath: "dataset/train/cat/c.jpg"},
	}
}

func TestOpen_RejectsEmptyGallery(t *testing.T) {
	c, err := Open(nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, model.ErrEmptyGallery)
	assert.True(t, errors.Is(err, model.ErrStateConflict))
}

func TestCursor_WrapsInBothDirections(t *testing.T) {
	c, err := Open(threeImages())
	require.NoError(t, err)

	_, err = c.JumpTo(2)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", c.Next().Filename)
	assert.Equal(t, 0, c.Index())

	assert.Equal(t, "c.jpg", c.Previous().Filename)
	assert.Equal(t, 2, c.Index())
}

func TestCursor_SingleImageStaysPut(t *testing.T) {
	c, err := Open(threeImages()[:1])
	require.NoError(t, err)

	c.Next()
	assert.Equal(t, 0, c.Index())
	c.Previous()
	assert.Equal(t, 0, c.Index())
	assert.Equal(t, "1/1", c.Position())
}

func TestCursor_JumpToBounds(t *testing.T) {
	c, err := Open(threeImages())
	require.NoError(t, err)

	for _, i := range []int{-1, 3, 10} {
		_, err := c.JumpTo(i)
		assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
	}
	assert.Equal(t, 0, c.Index(), "failed jumps must not move the cursor")

	img, err := c.JumpTo(1)
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", img.Filename)
	assert.Equal(t, "2/3", c.Position())
}

func TestCursor_IndexStaysInRange(t *testing.T) {
	c, err := Open(threeImages())
	require.NoError(t, err)

	moves := []bool{true, true, false, true, true, true, false, false, false, false, true}
	for _, forward := range moves {
		if forward {
			c.Next()
		} else {
			c.Previous()
		}
		require.GreaterOrEqual(t, c.Index(), 0)
		require.Less(t, c.Index(), c.Len())
	}
}

func TestOpen_CopiesItems(t *testing.T) {
	items := threeImages()
	c, err := Open(items)
	require.NoError(t, err)

	items[0].Filename = "changed.jpg"
	assert.Equal(t, "a.jpg", c.Current().Filename)

	out := c.Items()
	out[1].Filename = "changed.jpg"
	assert.Equal(t, "b.jpg", c.Items()[1].Filename)
}
