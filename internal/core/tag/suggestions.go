package tag

// QuickAdd 快速加入按鈕的食材
var QuickAdd = []string{"Tomato", "Cheese", "Egg", "Onion", "Garlic", "Salt", "Milk", "Chicken", "Rice", "Broccoli"}

// PantryStaples 常備食材
var PantryStaples = []string{"Olive Oil", "Black Pepper", "Flour", "Sugar", "Soy Sauce"}

// CommonIngredients 「建議常見食材」一次加入的清單
var CommonIngredients = []string{"Onion", "Garlic", "Salt", "Pepper", "Olive Oil"}
