package schema

// User-facing strings. The shell ships with a Turkish locale.
const (
	DefaultSessionTitle   = "Yeni Sekme"
	EmptyAnswerText       = "(cevap üretilemedi)"
	MsgOpenPageFirst      = "Lütfen önce bir web sayfası açın!"
	MsgSelectModel        = "Lütfen bir AI model seçin!"
	MsgBridgeUnavailable  = "Köprü API kullanılamıyor!"
	MsgBridgeDisconnected = "Köprü bağlantısı yok"
	MsgLoadingModels      = "Modeller yükleniyor..."
	MsgNoLocalModels      = "Ollama modeli bulunamadı"
	MsgThinking           = "Düşünüyor..."
	MsgURLLoadFailedFmt   = "URL yüklenirken hata oluştu: %v"
	MsgDispatchFailedFmt  = "Hata: %v"
	MsgModelFallbackFmt   = "Model değiştirildi: %s"
)
