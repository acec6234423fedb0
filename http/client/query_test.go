package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

func TestQueryPath(t *testing.T) {
	assert := assert.New(t)

	path := common.PathUserTasksQuery

	assert.Equal(path, queryPath(path, engine.QueryOptions{}))
	assert.Equal(path+"?limit=25", queryPath(path, engine.QueryOptions{Limit: 25}))
	assert.Equal(path+"?offset=50", queryPath(path, engine.QueryOptions{Offset: 50}))
	assert.Equal(path+"?limit=25&offset=50", queryPath(path, engine.QueryOptions{Limit: 25, Offset: 50}))
}
