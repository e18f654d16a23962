package cronmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadJobs(t *testing.T) {
	cm := NewCronManager(JobRegistry{
		"assets": {Func: func() {}, Schedule: "0 3 * * *"},
		"broken": {Func: func() {}, Schedule: "every day"},
		"empty":  {Schedule: "* * * * *"},
	})

	err := cm.LoadJobs()
	assert.Error(t, err)
	assert.Equal(t, []string{"assets"}, cm.Jobs())

	// повторная загрузка не дублирует задачи
	_ = cm.LoadJobs()
	assert.Equal(t, []string{"assets"}, cm.Jobs())

	cm.RemoveJob("assets")
	assert.Empty(t, cm.Jobs())

	cm.Start()
	cm.Stop()
}
