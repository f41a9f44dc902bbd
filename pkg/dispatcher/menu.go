package dispatcher

import "github.com/tinyland-inc/sellerbot/pkg/bus"

// Reply keyboard labels. Incoming text is matched against them verbatim.
const (
	BtnOrders = "📦 New orders"
	BtnSync   = "🔄 Sync"
	BtnStocks = "📊 Stocks"
	BtnPrices = "💰 Prices"
	BtnHelp   = "ℹ️ Help"

	BtnSyncStocks   = "🔄 Sync stocks"
	BtnSyncPrices   = "💰 Sync prices"
	BtnSyncAll      = "🔄 Sync all"
	BtnManualStocks = "📦 Manual stock control"
	BtnManualPrices = "💰 Manual price control"

	BtnCurrentStocks = "📊 Current stocks"
	BtnEditStock     = "✏️ Edit stock"
	BtnCurrentPrices = "💰 Current prices"
	BtnEditPrice     = "✏️ Edit price"

	BtnBack = "⬅️ Back"

	CmdStart = "/start"
	CmdMyID  = "/myid"
	CmdHelp  = "/help"
)

const (
	TextDenied  = "❌ You do not have access to this bot"
	TextUnknown = "I don't understand that command. Please use the menu buttons."

	textWelcome = "🤖 Magnit Marketplace control bot\n\n" +
		"Available features:\n" +
		"📦 - View new orders\n" +
		"📊 - Manage stocks\n" +
		"💰 - Manage prices\n" +
		"🔄 - Synchronize data\n\n" +
		"Choose an action:"

	textHelp = "🤖 Magnit Marketplace control bot help\n\n" +
		"📦 <b>New orders</b> - view unprocessed orders\n" +
		"📊 <b>Stocks</b> - manage product stocks\n" +
		"💰 <b>Prices</b> - manage product prices\n" +
		"🔄 <b>Sync</b> - synchronize data from Ozon\n\n" +
		"<i>The bot needs access to the Magnit and Ozon APIs</i>"

	textMainMenu   = "Main menu:"
	textSyncMenu   = "🔄 Data synchronization\n\nChoose an action:"
	textStocksMenu = "📊 Stock management\n\nChoose an action:"
	textPricesMenu = "💰 Price management\n\nChoose an action:"

	textEnterNumber    = "❌ Please enter a number"
	textInvalidProduct = "❌ Invalid product number"
	textProductsFailed = "❌ Could not fetch the product list"

	parseModeHTML = "HTML"
)

func mainKeyboard() bus.Keyboard {
	return bus.Keyboard{
		{BtnOrders, BtnSync},
		{BtnStocks, BtnPrices},
		{BtnHelp},
	}
}

func syncKeyboard() bus.Keyboard {
	return bus.Keyboard{
		{BtnSyncStocks, BtnSyncPrices},
		{BtnSyncAll, BtnManualStocks},
		{BtnManualPrices, BtnBack},
	}
}

func stocksKeyboard() bus.Keyboard {
	return bus.Keyboard{
		{BtnCurrentStocks, BtnSyncStocks},
		{BtnEditStock, BtnBack},
	}
}

func pricesKeyboard() bus.Keyboard {
	return bus.Keyboard{
		{BtnCurrentPrices, BtnSyncPrices},
		{BtnEditPrice, BtnBack},
	}
}

func backKeyboard() bus.Keyboard {
	return bus.Keyboard{{BtnBack}}
}
