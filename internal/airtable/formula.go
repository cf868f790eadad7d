package airtable

import (
	"fmt"
	"strings"
)

// formulaEscaper экранирует значения для строковых литералов формул Airtable.
var formulaEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
)

// Quote возвращает value как строковый литерал формулы в одинарных кавычках.
func Quote(value string) string {
	return "'" + formulaEscaper.Replace(value) + "'"
}

// fieldRef возвращает ссылку на поле: {Field Name}.
// Фигурные скобки в имени поля недопустимы в Airtable, поэтому удаляются.
func fieldRef(field string) string {
	field = strings.NewReplacer("{", "", "}", "").Replace(field)
	return "{" + field + "}"
}

// Eq — точное совпадение строкового поля: {Field} = 'value'.
func Eq(field, value string) string {
	return fmt.Sprintf("%s = %s", fieldRef(field), Quote(value))
}

// IsTrue — истинность checkbox-поля.
func IsTrue(field string) string {
	return fmt.Sprintf("%s = TRUE()", fieldRef(field))
}

// And объединяет условия через AND(). Пустые условия пропускаются.
func And(conds ...string) string {
	return combine("AND", conds)
}

// Or объединяет условия через OR(). Пустые условия пропускаются.
func Or(conds ...string) string {
	return combine("OR", conds)
}

func combine(op string, conds []string) string {
	nonEmpty := make([]string, 0, len(conds))
	for _, c := range conds {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return ""
	case 1:
		return nonEmpty[0]
	default:
		return op + "(" + strings.Join(nonEmpty, ", ") + ")"
	}
}
