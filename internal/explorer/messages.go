package explorer

import (
	"fmt"
	"strings"

	"github.com/brewgator/block-explorer/internal/rpc"
)

func subject(kind Kind) string {
	switch kind {
	case KindTransaction:
		return "transaction"
	case KindBlock:
		return "block"
	case KindBalance:
		return "address"
	default:
		return "block, transaction or address"
	}
}

// UserMessage collapses a lookup failure into the single banner line shown
// to the user. It switches on the error's Kind, never on its text, and
// names the offending input wherever the input is at fault.
func UserMessage(q Query, err error) string {
	input := strings.TrimSpace(q.Input())
	noun := subject(q.Kind())

	switch rpc.Classify(err) {
	case rpc.KindNotFound:
		return fmt.Sprintf("No %s found for %q.", noun, input)
	case rpc.KindInvalidInput:
		return fmt.Sprintf("%q is not a valid %s.", input, noun)
	case rpc.KindNetwork:
		return "The Bitcoin node could not be reached. Check the connection and try again."
	default:
		return fmt.Sprintf("The node failed to look up %s %q. Check the %s and try again.", noun, input, noun)
	}
}
