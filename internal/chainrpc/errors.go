package chainrpc

import "errors"

var errUnexpectedReturnType = errors.New("chainrpc: unexpected contract return type")
