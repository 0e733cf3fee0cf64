package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/bundlecast/internal/forecast"
)

var validate = validator.New()

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the components the handlers call into.
type Deps struct {
	Pipeline   *forecast.Pipeline
	Confidence *forecast.ConfidenceEvaluator
	Store      HealthChecker
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		if deps.Store != nil {
			if err := deps.Store.Health(c.UserContext()); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable: "+err.Error())
			}
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "bundlecast",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	vendors := app.Group("/api/v1/vendors/:vendorID")

	vendors.Get("/forecast/naive", func(c *fiber.Ctx) error {
		vendorID, err := vendorParam(c)
		if err != nil {
			return err
		}

		var start time.Time
		if s := c.Query("start_date"); s != "" {
			if start, err = forecast.ParseDate(s); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid start_date; use YYYY-MM-DD")
			}
		}

		week, err := deps.Pipeline.Generator.Generate(c.UserContext(), vendorID, start)
		if err != nil {
			return statusError(err, "failed to generate forecast")
		}
		return c.JSON(week)
	})

	vendors.Get("/forecast/stored", func(c *fiber.Ctx) error {
		vendorID, err := vendorParam(c)
		if err != nil {
			return err
		}

		var q rangeQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := deps.Pipeline.Generator.Stored(c.UserContext(), vendorID, q.From, q.To)
		if err != nil {
			return statusError(err, "failed to load stored forecasts")
		}
		return c.JSON(fiber.Map{
			"vendor_id": vendorID,
			"from":      q.From.Format(forecast.DateLayout),
			"to":        q.To.Format(forecast.DateLayout),
			"forecasts": records,
		})
	})

	vendors.Get("/confidence", func(c *fiber.Ctx) error {
		vendorID, err := vendorParam(c)
		if err != nil {
			return err
		}

		var q confidenceQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		score, err := deps.Confidence.Evaluate(c.UserContext(), vendorID, q.TemplateID, q.Date)
		if err != nil {
			return statusError(err, "failed to compute confidence")
		}
		return c.JSON(fiber.Map{
			"vendor_id":   vendorID,
			"template_id": q.TemplateID,
			"date":        q.Date.Format(forecast.DateLayout),
			"confidence":  score,
		})
	})

	vendors.Post("/aggregate", func(c *fiber.Ctx) error {
		vendorID, err := vendorParam(c)
		if err != nil {
			return err
		}

		q := aggregateQuery{Days: c.QueryInt("days", 0)}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := deps.Pipeline.Aggregator.Aggregate(c.UserContext(), vendorID, q.Days)
		if err != nil {
			return statusError(err, "failed to aggregate bookings")
		}
		return c.JSON(report)
	})

	vendors.Post("/enrich", func(c *fiber.Ctx) error {
		vendorID, err := vendorParam(c)
		if err != nil {
			return err
		}

		// Dates that failed are listed in the report and still answer 200.
		report, err := deps.Pipeline.Enricher.Enrich(c.UserContext(), vendorID)
		if err != nil {
			return statusError(err, "failed to enrich weather")
		}
		return c.JSON(report)
	})
}

type vendorPath struct {
	VendorID int64 `validate:"required,gt=0"`
}

func vendorParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("vendorID"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "vendor id must be an integer")
	}
	if err := validate.Struct(vendorPath{VendorID: id}); err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "vendor id must be positive")
	}
	return id, nil
}

// rangeQuery holds an inclusive date range.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (r *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	var err error
	if r.From, err = forecast.ParseDate(fromStr); err != nil {
		return errors.New("invalid from; use YYYY-MM-DD")
	}
	if r.To, err = forecast.ParseDate(toStr); err != nil {
		return errors.New("invalid to; use YYYY-MM-DD")
	}
	return nil
}

type confidenceQuery struct {
	TemplateID int64     `validate:"required,gt=0"`
	Date       time.Time `validate:"required"`
}

func (q *confidenceQuery) bind(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Query("template_id"), 10, 64)
	if err != nil {
		return errors.New("template_id query parameter must be an integer")
	}
	q.TemplateID = id

	if q.Date, err = forecast.ParseDate(c.Query("date")); err != nil {
		return errors.New("invalid date; use YYYY-MM-DD")
	}
	return nil
}

type aggregateQuery struct {
	Days int `validate:"gte=0,lte=366"`
}

// statusError maps pipeline errors onto HTTP status codes.
func statusError(err error, fallback string) error {
	switch {
	case errors.Is(err, forecast.ErrInvalidKey):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, forecast.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, forecast.ErrUnresolvableLocation):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, fallback)
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback+": "+err.Error())
}
