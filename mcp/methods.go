package mcp

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// Lifecycle
const (
	InitializeMethod Method = "initialize"
	PingMethod       Method = "ping"
)

// Tools
const (
	ToolsListMethod    Method = "tools/list"
	ToolsListAllMethod Method = "tools/list/all"
	ToolsCallMethod    Method = "tools/call"
)

// Resources
const (
	ResourcesListMethod          Method = "resources/list"
	ResourcesTemplatesListMethod Method = "resources/templates/list"
	ResourcesReadMethod          Method = "resources/read"
	ResourcesSubscribeMethod     Method = "resources/subscribe"
	ResourcesUnsubscribeMethod   Method = "resources/unsubscribe"
)

// Prompts
const (
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"
)

// System
const (
	LoggingSetLevelMethod    Method = "logging/setLevel"
	CompletionCompleteMethod Method = "completion/complete"
	RootsListMethod          Method = "roots/list"
)
