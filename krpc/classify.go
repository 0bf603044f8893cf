package krpc

// Label is one of the closed set of message kinds the node classifies
// every inbound datagram into (§4.1). Classification is total: every
// decoded Msg maps to exactly one Label.
type Label string

const (
	PingRequest         Label = "ping_request"
	FindNodeRequest     Label = "find_node_request"
	GetPeersRequest     Label = "get_peers_request"
	AnnouncePeerRequest Label = "announce_peer_request"
	SampleInfohashes    Label = "sample_infohashes"
	Vote                Label = "vote"

	PingResponse     Label = "ping_response"
	FindNodeResponse Label = "find_node_response"
	GetPeersResponse Label = "get_peers_response"

	ErrorMsg Label = "error"
	Unknown  Label = "unknown"
)

// Classify assigns m exactly one Label, per §4.1.
func Classify(m Msg) Label {
	switch m.Y {
	case "q":
		switch m.Q {
		case "ping":
			return PingRequest
		case "find_node":
			return FindNodeRequest
		case "get_peers":
			return GetPeersRequest
		case "announce_peer":
			return AnnouncePeerRequest
		case "sample_infohashes":
			return SampleInfohashes
		case "vote":
			return Vote
		default:
			return Unknown
		}
	case "r":
		if m.R == nil {
			return Unknown
		}
		if len(m.R.Values) > 0 {
			return GetPeersResponse
		}
		if len(m.R.Nodes) > 0 {
			return FindNodeResponse
		}
		// A response carrying only "id" (and, historically, "ip"/"p") is a
		// bare ping response. Return/Token/Nodes/Values are all omitempty,
		// so an otherwise-empty Return decodes exactly this way.
		if m.R.Token == "" && len(m.R.Nodes) == 0 && len(m.R.Values) == 0 {
			return PingResponse
		}
		return Unknown
	case "e":
		return ErrorMsg
	default:
		return Unknown
	}
}
