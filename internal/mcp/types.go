package mcp

// PollInput is the input for the poll MCP tool.
type PollInput struct {
	Since int64 `json:"since,omitempty" jsonschema:"Unix seconds. When set, return messages from that time on instead of only unseen ones"`
}

// PollOutput is the output for the poll MCP tool.
type PollOutput struct {
	Status   string   `json:"status" jsonschema:"Result status: messages or empty"`
	Messages []string `json:"messages" jsonschema:"Rendered message lines in relay order"`
}

// SendMessageInput is the input for the send_message MCP tool.
type SendMessageInput struct {
	To   string `json:"to,omitempty" jsonschema:"Correspondent to send to. Omit to reply to whoever wrote last"`
	Body string `json:"body" jsonschema:"Message text"`
}

// SendMessageOutput is the output for the send_message MCP tool.
type SendMessageOutput struct {
	Status string `json:"status" jsonschema:"Always sent; the relay does not confirm delivery"`
	To     string `json:"to" jsonschema:"Requested correspondent, or reply when omitted"`
}

// WaitForMessageInput is the input for the wait_for_message MCP tool.
type WaitForMessageInput struct {
	Timeout int `json:"timeout,omitempty" jsonschema:"Max seconds to wait. Default 300, max 600"`
}

// WaitForMessageOutput is the output for the wait_for_message MCP tool.
type WaitForMessageOutput struct {
	Status        string   `json:"status" jsonschema:"Result: message_received or timeout"`
	Messages      []string `json:"messages,omitempty" jsonschema:"Lines that arrived during the wait"`
	WaitedSeconds int      `json:"waited_seconds" jsonschema:"How long the wait lasted in seconds"`
}

// ListBuddiesInput is the input for the list_buddies MCP tool.
type ListBuddiesInput struct{}

// ListBuddiesOutput is the output for the list_buddies MCP tool.
type ListBuddiesOutput struct {
	Buddies []string `json:"buddies" jsonschema:"Correspondents the backend reports online"`
	Count   int      `json:"count"`
}
