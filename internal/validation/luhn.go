// Package validation содержит проверки входных данных портала.
package validation

// IsValidOrderNumber проверяет номер заказа: только цифры и корректная контрольная сумма Луна.
// Номера заказов магазина выдаются с контрольной цифрой, поэтому опечатка в вебхуке отсекается здесь.
func IsValidOrderNumber(number string) bool {
	if len(number) < 2 {
		return false
	}

	sum := 0
	for i := 0; i < len(number); i++ {
		c := number[len(number)-1-i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}

	return sum%10 == 0
}
