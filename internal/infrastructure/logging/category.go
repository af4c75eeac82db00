package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Socket          Category = "Socket"
	Queue           Category = "Queue"
	Reconcile       Category = "Reconcile"
	Notify          Category = "Notify"
	RequestResponse Category = "RequestResponse"
	Internal        Category = "Internal"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	ExternalService SubCategory = "ExternalService"

	// Socket
	Connect   SubCategory = "Connect"
	Reconnect SubCategory = "Reconnect"
	RoomJoin  SubCategory = "RoomJoin"
	Delivery  SubCategory = "Delivery"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	PatientID    ExtraKey = "PatientId"
	EventName    ExtraKey = "EventName"
	RoomKey      ExtraKey = "RoomKey"
	RetryCount   ExtraKey = "RetryCount"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
)
