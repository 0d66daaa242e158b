package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionctl/internal/model"
)

const catImages = `{"images":[{"filename":"a.jpg","filepath":"static/train/cat/a.jpg"},{"filename":"b.jpg","filepath":"static/train/cat/b.jpg"}]}`

func TestTrainingImages_Cached(t *testing.T) {
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/training-images/cat", httpmock.NewStringResponder(http.StatusOK, catImages))

	first, err := c.TrainingImages(context.Background(), "cat")
	require.NoError(t, err)
	require.Len(t, first, 2)
	first[0].Filename = "mutated"

	second, err := c.TrainingImages(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", second[0].Filename)
	assert.Equal(t, 1, mt.GetTotalCallCount())

	c.InvalidateImages()
	_, err = c.TrainingImages(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestTrainingImages_CacheDisabled(t *testing.T) {
	c, mt := newMockedClient(t)
	c.SetImageCacheTTL(0)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/training-images/cat", httpmock.NewStringResponder(http.StatusOK, catImages))

	for range 3 {
		_, err := c.TrainingImages(context.Background(), "cat")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, mt.GetTotalCallCount())
	c.InvalidateImages()
}

func TestTrainingImages_BlankLabel(t *testing.T) {
	c, mt := newMockedClient(t)
	_, err := c.TrainingImages(context.Background(), "  ")
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Zero(t, mt.GetTotalCallCount())
}

func TestLabelImages_FallsBackToSamples(t *testing.T) {
	c, mt := newMockedClient(t)
	c.SetImageCacheTTL(time.Minute)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/training-images/dog", httpmock.NewStringResponder(http.StatusOK, `{"images":[]}`))
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/sample-images/dog",
		httpmock.NewStringResponder(http.StatusOK, `{"images":[{"filename":"d.jpg","filepath":"uploads/dog/d.jpg"}]}`))

	refs, err := c.LabelImages(context.Background(), "dog", false)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "d.jpg", refs[0].Filename)

	trainedOnly, err := c.LabelImages(context.Background(), "dog", true)
	require.NoError(t, err)
	assert.Empty(t, trainedOnly)
}

func TestLabelImages_TrainedErrorFallsBack(t *testing.T) {
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/training-images/dog", httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"no model"}`))
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/sample-images/dog",
		httpmock.NewStringResponder(http.StatusOK, `{"images":[{"filename":"d.jpg","filepath":"uploads/dog/d.jpg"}]}`))

	refs, err := c.LabelImages(context.Background(), "dog", false)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	_, err = c.LabelImages(context.Background(), "dog", true)
	require.Error(t, err)
	assert.True(t, model.IsServer(err))
}

func TestLabelImages_PrefersTrained(t *testing.T) {
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/training-images/cat", httpmock.NewStringResponder(http.StatusOK, catImages))

	refs, err := c.LabelImages(context.Background(), "cat", false)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Zero(t, mt.GetCallCountInfo()["GET "+testBaseURL+"/sample-images/cat"])
}

func TestUploadFlushesImageCache(t *testing.T) {
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodGet, testBaseURL+"/sample-images/cat", httpmock.NewStringResponder(http.StatusOK, catImages))
	mt.RegisterResponder(http.MethodPost, testBaseURL+"/upload", httpmock.NewStringResponder(http.StatusOK, `{"status":true,"image_id":1}`))

	_, err := c.SampleImages(context.Background(), "cat")
	require.NoError(t, err)
	_, err = c.Upload(context.Background(), UploadRequest{
		Image: ImageFile{Filename: "c.png", ContentType: "image/png", Data: pngHeader},
		Label: "cat",
	})
	require.NoError(t, err)
	_, err = c.SampleImages(context.Background(), "cat")
	require.NoError(t, err)

	assert.Equal(t, 2, mt.GetCallCountInfo()["GET "+testBaseURL+"/sample-images/cat"])
}
