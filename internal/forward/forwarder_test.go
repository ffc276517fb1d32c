package forward

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailforward/internal/model"
)

func TestNew(t *testing.T) {
	f, err := New(model.ForwarderConfig{Kind: model.ForwarderElastic}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Elastic{}, f)

	f, err = New(model.ForwarderConfig{Kind: model.ForwarderSMTP}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SMTP{}, f)

	_, err = New(model.ForwarderConfig{Kind: "pigeon"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t,
		[]string{"recipient1@gmail.com", "recipient2@gmail.com", "c@d.org"},
		splitRecipients("recipient1@gmail.com;recipient2@gmail.com, c@d.org;"),
	)
	assert.Empty(t, splitRecipients(" ; "))
}
