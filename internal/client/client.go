package client

import (
	"github.com/nettlesoup/tftpd/internal/protocol"
	"github.com/nettlesoup/tftpd/internal/utils"
)

const (
	DEFAULT_MODE = protocol.ModeOctet
)

// TransferOpts selects the transfer mode for a single Get or Put.
type TransferOpts struct {
	Mode *protocol.TransferMode
}

func (o TransferOpts) GetMode() protocol.TransferMode {
	return utils.DefaultIfNil(o.Mode, DEFAULT_MODE)
}
