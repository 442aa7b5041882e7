package tradedesk

// CSS selectors used across the site driver.
const (
	// Login
	UsernameSelector = `[name="username"]`
	PasswordSelector = `[name="password"]`
	SignInSelector   = `[class="header_signup"]`
	ProfileSelector  = `[id="tmp_header_menu_left"]`

	// Event page filters
	AllInventorySelector  = `[class*="filter_tm"]`
	SectionFilterSelector = `[name="filter_ticket_section"]`
	RowFilterSelector     = `[name="filter_ticket_row"]`
	SeatFilterSelector    = `[name="filter_ticket_seat"]`

	// Inventory table
	TicketRowSelector = `tr[id*="ticket_"]`
	SectionCell       = `[class*="column_section"]`
	RowCell           = `[class*="column_row"]`
	SeatsCell         = `[class*="column_seats"]`
	PriceCell         = `[class*="column_price"]`
	BuyButton         = `[class="button special no__border to__cart clickable"]`

	// Cart
	CheckoutButton = `[class="button positive purchase_send_checkout"]`
	CartPage       = `[id="purchase"]`
	CartPrice      = `[dataformat="price"]`
	CancelButton   = `[id="cancel"]`
	ConfirmCancel  = `[class="action yes"]`
	PaymentMethods = `[class="braintree-methods braintree-methods-initial"]`
	ProceedButton  = `[id="proceed"]`
)

// ticketIDPrefix precedes the listing id in a ticket row's id attribute.
const ticketIDPrefix = "ticket_"

const scrollToEndJS = `(() => { window.scrollTo(0, document.body.scrollHeight); return true; })()`
