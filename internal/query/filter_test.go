package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"visionctl/internal/model"
)

func sampleModels() []model.Model {
	return []model.Model{
		{ID: 1, Name: "Cats", Status: model.StatusTrained},
		{ID: 2, Name: "Dogs", Status: model.StatusFailed},
	}
}

func ids(models []model.Model) []int64 {
	out := make([]int64, 0, len(models))
	for _, m := range models {
		out = append(out, m.ID)
	}
	return out
}

func TestFilter_SearchIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, []int64{1}, ids(Filter(sampleModels(), "cat", StatusAll)))
	assert.Equal(t, []int64{1}, ids(Filter(sampleModels(), "CAT", StatusAll)))
}

func TestFilter_StatusIsExact(t *testing.T) {
	assert.Equal(t, []int64{2}, ids(Filter(sampleModels(), "", "failed")))
	assert.Empty(t, Filter(sampleModels(), "", "fail"))
}

func TestFilter_EmptyInputsKeepOrder(t *testing.T) {
	assert.Equal(t, []int64{1, 2}, ids(Filter(sampleModels(), "", StatusAll)))
	assert.Equal(t, []int64{1, 2}, ids(Filter(sampleModels(), "", "")))
}

func TestFilter_SearchesEveryField(t *testing.T) {
	models := []model.Model{
		{ID: 10, Name: "a", Path: "models/Latest_Model.h5"},
		{ID: 11, Name: "b", Classes: []string{"Zebra", "horse"}},
		{ID: 12, Name: "c", Size: "12.5 MB"},
		{ID: 345, Name: "d"},
	}

	assert.Equal(t, []int64{10}, ids(Filter(models, "latest", StatusAll)))
	assert.Equal(t, []int64{11}, ids(Filter(models, "zeb", StatusAll)))
	assert.Equal(t, []int64{12}, ids(Filter(models, "mb", StatusAll)))
	assert.Equal(t, []int64{345}, ids(Filter(models, "34", StatusAll)))
	assert.Equal(t, []int64{12}, ids(Filter(models, "12.", StatusAll)))
}

func TestFilter_AbsentStatusOnlyMatchesAll(t *testing.T) {
	models := []model.Model{
		{ID: 1, Name: "no status"},
		{ID: 2, Name: "trained", Status: model.StatusTrained},
	}

	assert.Equal(t, []int64{1, 2}, ids(Filter(models, "", StatusAll)))
	assert.Equal(t, []int64{2}, ids(Filter(models, "", "trained")))
	assert.Empty(t, Filter(models, "", "unknown"))
}

func TestFilter_DoesNotAliasInput(t *testing.T) {
	in := sampleModels()
	out := Filter(in, "", StatusAll)
	out[0].Name = "changed"
	assert.Equal(t, "Cats", in[0].Name)
	assert.NotNil(t, Filter(nil, "x", StatusAll))
}

func TestNextStatusFilterCycles(t *testing.T) {
	assert.Equal(t, "training", NextStatusFilter(StatusAll))
	assert.Equal(t, StatusAll, NextStatusFilter("failed"))
	assert.Equal(t, StatusAll, NextStatusFilter("bogus"))
}
