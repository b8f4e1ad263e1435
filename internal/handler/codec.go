package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// respond encodes a single value with fn and writes it with status.
func respond(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)
	writeJSON(w, status, e)
}

// decodeObject reads a JSON object body field by field. Only an empty or
// blank body is treated as an empty object; anything else must be an object.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(apperr.Invalid("body", err.Error()), "read body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return apperr.Invalid("body", "must be a JSON object")
	}
	if err := d.Obj(field); err != nil {
		return errors.Wrap(apperr.Invalid("body", err.Error()), "decode body")
	}
	return nil
}

// optStr decodes a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimestamp(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	timestamp(e, *t)
}

func optString(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

func encodeLine(e *jx.Encoder, l cart.Line) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(l.ID)
	e.FieldStart("sellerKind")
	e.Str(string(l.Seller.Kind))
	e.FieldStart("sellerId")
	e.Str(l.Seller.ID)
	e.FieldStart("itemId")
	e.Str(l.ItemID)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("createdAt")
	timestamp(e, l.CreatedAt)
	e.ObjEnd()
}

func encodeLines(e *jx.Encoder, lines []cart.Line) {
	e.ArrStart()
	for _, l := range lines {
		encodeLine(e, l)
	}
	e.ArrEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("sellerKind")
	e.Str(string(o.Seller.Kind))
	e.FieldStart("sellerId")
	e.Str(o.Seller.ID)
	e.FieldStart("sellerName")
	e.Str(o.SellerName)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("itemId")
		e.Str(it.ItemID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		money(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("deliveryFee")
	money(e, o.DeliveryFee)
	e.FieldStart("discount")
	money(e, o.Discount)
	e.FieldStart("couponCode")
	optString(e, o.CouponCode)
	e.FieldStart("total")
	money(e, o.Total)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("driverId")
	optString(e, o.DriverID)
	e.FieldStart("deliveryPayment")
	money(e, o.DeliveryPayment)
	e.FieldStart("challengeOutcome")
	e.Str(string(o.ChallengeOutcome))
	e.FieldStart("createdAt")
	timestamp(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	timestamp(e, o.UpdatedAt)
	e.FieldStart("deliveredAt")
	optTimestamp(e, o.DeliveredAt)
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("label")
	e.Str(c.Label)
	e.FieldStart("discountPct")
	e.Int(c.DiscountPct)
	e.FieldStart("expiresAt")
	timestamp(e, c.ExpiresAt)
	e.FieldStart("applied")
	e.Bool(c.Applied)
	e.FieldStart("appliedAt")
	optTimestamp(e, c.AppliedAt)
	e.ObjEnd()
}

func encodeSession(e *jx.Encoder, s *challenge.Session) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("orderId")
	e.Str(s.OrderID)
	e.FieldStart("difficulty")
	e.Str(string(s.Difficulty))
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("expiresAt")
	timestamp(e, s.ExpiresAt)
	e.ObjEnd()
}

func encodeTicket(e *jx.Encoder, t *challenge.Ticket) {
	e.ObjStart()
	e.FieldStart("session")
	encodeSession(e, &t.Session)
	e.FieldStart("token")
	e.Str(t.Token)
	e.FieldStart("url")
	e.Str(t.URL)
	e.ObjEnd()
}

func encodeReward(e *jx.Encoder, r *challenge.Reward) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(r.Code)
	e.FieldStart("label")
	e.Str(r.Label)
	e.FieldStart("discountPct")
	e.Int(r.DiscountPct)
	e.FieldStart("expiresAt")
	timestamp(e, r.ExpiresAt)
	e.ObjEnd()
}

func encodeEarnings(e *jx.Encoder, from, to time.Time, earn *order.Earnings) {
	e.ObjStart()
	e.FieldStart("from")
	timestamp(e, from)
	e.FieldStart("to")
	timestamp(e, to)
	e.FieldStart("deliveries")
	e.Int(earn.Deliveries)
	e.FieldStart("total")
	money(e, earn.Total)
	e.ObjEnd()
}
