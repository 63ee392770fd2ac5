package consts

import "time"

const (
	ProtocolMTU     = 1024 // максимальный размер батча фреймов в одном bulk-трансфере
	TransferUnit    = 64   // размер физического USB-пакета bulk эндпоинта
	ProtocolVersion = 0

	PollTimeout    = 100 * time.Millisecond // таймаут опроса очереди и bulk I/O, ограничивает задержку закрытия
	DrainTimeout   = 10 * time.Millisecond
	ControlTimeout = 100 * time.Millisecond

	VersionRequestType = 0xC1 // device-to-host | vendor | interface
	VersionRequest     = 0

	VendorClass    = 0xFF
	VendorSubClass = 0

	CrazyradioVendorID  = 0x35f0
	CrazyradioProductID = 0xad20

	MethodsCall = "well-known.methods"

	DefaultPendingShards = 16
)
