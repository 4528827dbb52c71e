package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/ports"
)

type handler struct {
	repository ports.CityRepository
	logger     *slog.Logger
}

type citiesQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=10" binding:"min=1,max=50"`
}

type cityResponse struct {
	Name        string   `json:"name"`
	Pollution   *float64 `json:"pollution"`
	Description *string  `json:"description"`
	Country     string   `json:"country"`
}

type citiesResponse struct {
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
	Cities []cityResponse `json:"cities"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": "ok"})
}

func (h *handler) listCities(c *gin.Context) {
	var details []string

	code := c.Param("countryCode")
	country, ok := domain.LookupCountry(code)
	if !ok {
		details = append(details, fmt.Sprintf(`"countryCode" must be one of [%s]`, strings.Join(domain.CountryCodes(), ", ")))
	}

	var query citiesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		details = append(details, validationDetails(err)...)
	}

	if len(details) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Validation error", Details: details})
		return
	}

	result, err := h.repository.ListActiveByCountry(c.Request.Context(), country.Name, query.Page, query.Limit)
	if err != nil {
		h.logger.Error("list cities failed", "country", country.Code, "page", query.Page, "limit", query.Limit, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	cities := make([]cityResponse, 0, len(result.Rows))
	for _, row := range result.Rows {
		cities = append(cities, cityResponse{
			Name:        row.Name,
			Pollution:   row.Pollution,
			Description: row.Description,
			Country:     row.Country,
		})
	}

	c.JSON(http.StatusOK, citiesResponse{
		Page:   query.Page,
		Limit:  query.Limit,
		Total:  result.Total,
		Cities: cities,
	})
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{`"page" and "limit" must be integers`}
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "min":
			details = append(details, fmt.Sprintf(`"%s" must be greater than or equal to %s`, field, fe.Param()))
		case "max":
			details = append(details, fmt.Sprintf(`"%s" must be less than or equal to %s`, field, fe.Param()))
		default:
			details = append(details, fmt.Sprintf(`"%s" is invalid`, field))
		}
	}
	return details
}
