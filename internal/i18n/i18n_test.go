package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForPicksLanguage(t *testing.T) {
	assert.Equal(t, "zh", For("zh").Language())
	assert.Equal(t, "zh", For("zh-CN").Language())
	assert.Equal(t, "en", For("en").Language())
	assert.Equal(t, "en", For("en-GB,en;q=0.8").Language())
	assert.Equal(t, "zh", For("").Language())
	assert.Equal(t, "zh", For().Language())
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	for k := range zh {
		_, ok := en[k]
		assert.True(t, ok, "missing en entry for %s", k)
	}
	assert.Equal(t, len(zh), len(en))
}

func TestT(t *testing.T) {
	c := For("en")
	assert.Equal(t, "API configured: openai", c.T(MsgConfigApplied, "openai"))
	assert.Equal(t, "Session ended", c.T(MsgSessionEnded))
	assert.Equal(t, "no_such_key", c.T(Key("no_such_key")))
	assert.Equal(t, "会话已结束", For("zh").T(MsgSessionEnded))
}
